// ChatRelay CLI - command line chat client
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chatrelay/chatrelay/clients/go/chatrelay"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHATRELAY_URL")
	client := chatrelay.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chatrelay register <email> <password> [name]")
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 4 {
			name = os.Args[4]
		}
		resp, err := client.Register(ctx, os.Args[2], os.Args[3], name)
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", resp.User.Email)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chatrelay login <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Logged in as: %s\n", resp.User.Email)

	case "logout":
		exitOnError(client.Logout(ctx))
		fmt.Println("Logged out")

	case "chats":
		chats, err := client.ListChats(ctx)
		exitOnError(err)
		for _, chat := range chats {
			fmt.Printf("  %s  %s  (%s)\n", chat.ID, chat.ChatName, chat.CreatedAt.Format("2006-01-02 15:04"))
		}

	case "new":
		name := ""
		if len(os.Args) > 2 {
			name = os.Args[2]
		}
		chat, err := client.CreateChat(ctx, name)
		exitOnError(err)
		fmt.Printf("Created chat: %s\n", chat.ID)

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatrelay history <chat_id>")
			os.Exit(1)
		}
		msgs, err := client.GetMessages(ctx, os.Args[2])
		exitOnError(err)
		for _, msg := range msgs {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatrelay chat <chat_id>")
			os.Exit(1)
		}
		runChat(ctx, client, os.Args[2])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// runChat reads lines from stdin and streams the assistant's reply for each.
func runChat(ctx context.Context, client *chatrelay.Client, chatID string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a message (ctrl-d to quit):")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var printed int
		result, err := client.SendMessage(ctx, chatID, text, &chatrelay.StreamOptions{
			OnState: func(state chatrelay.StreamState) {
				if state == chatrelay.StateThinking {
					fmt.Print("AI: ")
				}
			},
			OnDelta: func(accumulated string) {
				// Print only the tail that is new since last delta.
				fmt.Print(accumulated[printed:])
				printed = len(accumulated)
			},
			OnStreamError: func(message string) {
				fmt.Fprintf(os.Stderr, "\n[stream error: %s]\n", message)
			},
		})
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if result.Truncated {
			fmt.Fprintln(os.Stderr, "[response truncated; not saved]")
		}
		if result.SaveErr != nil {
			fmt.Fprintf(os.Stderr, "[response not saved: %v]\n", result.SaveErr)
		}
	}
}

func usage() {
	fmt.Println(`ChatRelay CLI - streamed LLM chat

Usage: chatrelay <command> [options]

Commands:
  register <email> <password> [name]  Create an account
  login <email> <password>            Open a session
  logout                              Close the session
  new [name]                          Create a chat
  chats                               List chats
  history <chat_id>                   Print a chat's messages
  chat <chat_id>                      Interactive chat with streaming replies
  help                                Show this help

Environment:
  CHATRELAY_URL     Server base URL (default http://localhost:8080)
  CHATRELAY_CONFIG  Session config dir (default ~/.chatrelay)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
