package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itish2003/docrag/services"
)

var askCmd = &cobra.Command{
	Use:   "ask [QUESTION]",
	Short: "Ask a question about the indexed documents",
	Long: `Answers one question given as arguments, or reads questions from stdin
until "exit" when none is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) > 0 {
			return answerOne(ctx, cmd, a.rag, strings.Join(args, " "))
		}
		return askLoop(ctx, cmd, a.rag, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func askLoop(ctx context.Context, cmd *cobra.Command, rag services.RAGService, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		cmd.Print("Question (exit to quit): ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch q {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		// One bad question should not end the session.
		if err := answerOne(ctx, cmd, rag, q); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	}
}

func answerOne(ctx context.Context, cmd *cobra.Command, rag services.RAGService, question string) error {
	ans, err := rag.Answer(ctx, question)
	if err != nil {
		return err
	}
	cmd.Println(ans.Answer)
	if len(ans.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, s := range ans.Sources {
			cmd.Println("  -", s)
		}
	}
	return nil
}
