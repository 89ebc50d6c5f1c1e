package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// chatCmd talks to the NLP agent
var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send natural language commands to the agent",
	Long: `Sends a message to the server-side NLP agent, which maps it to a function
in your library or the public store and executes it.

With arguments, sends a single message and prints the reply. Without
arguments, starts an interactive session; exit with 'quit' or Ctrl-D.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}

	if len(args) > 0 {
		reply, err := app.chat.Send(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	fmt.Println("BridgeNLP chat. Type 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		reply, err := app.chat.Send(cmd.Context(), line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		fmt.Println(reply)
	}
}
