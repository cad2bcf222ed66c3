// Command nodus is the command-line companion to the HTTP server:
// key generation plus one-shot posting, timeline and DM reads.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quirze62/nodus/internal/client"
	"github.com/quirze62/nodus/internal/config"
	"github.com/quirze62/nodus/internal/nips"
	"github.com/quirze62/nodus/internal/nostr"
)

const opTimeout = 15 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "nodus",
		Short:         "Nostr social client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(keygenCmd(), postCmd(), timelineCmd(), dmCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newClient builds a client from the environment configuration.
func newClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("NODUS_PRIVATE_KEY is not set")
	}

	// Keep CLI output clean unless debugging
	if cfg.LogLevel != "debug" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})))
	}

	return client.New(cfg.PrivateKey, client.Options{
		ReadRelays:     cfg.ReadRelays,
		WriteRelays:    cfg.WriteRelays,
		IndexerRelays:  cfg.IndexerRelays,
		UseNip44ForDMs: cfg.DMNip44,
	})
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			privBytes, err := nostr.GeneratePrivateKey()
			if err != nil {
				return err
			}
			pubBytes, err := nostr.GetPublicKey(privBytes)
			if err != nil {
				return err
			}
			privHex := hex.EncodeToString(privBytes)
			pubHex := hex.EncodeToString(pubBytes)

			nsec, err := nips.EncodePrivkey(privHex)
			if err != nil {
				return err
			}
			npub, err := nips.EncodePubkey(pubHex)
			if err != nil {
				return err
			}

			fmt.Printf("private key (hex):  %s\n", privHex)
			fmt.Printf("private key (nsec): %s\n", nsec)
			fmt.Printf("public key (hex):   %s\n", pubHex)
			fmt.Printf("public key (npub):  %s\n", npub)
			return nil
		},
	}
}

func postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <content>",
		Short: "Publish a text note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			result, err := c.PostNote(ctx, args[0])
			if err != nil {
				return err
			}

			noteID, _ := nips.EncodeEventID(result.EventID)
			fmt.Printf("published %s (accepted by %d relays)\n", noteID, result.Accepted)
			return nil
		},
	}
}

func timelineCmd() *cobra.Command {
	var limit int
	var follows bool

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print recent notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			notes, err := c.Timeline(ctx, client.TimelineOptions{
				Limit:       limit,
				FollowsOnly: follows,
				SkipReplies: true,
			})
			if err != nil {
				return err
			}

			for _, note := range notes {
				author := nostr.ShortID(note.Event.PubKey)
				if note.Author != nil && note.Author.Name != "" {
					author = note.Author.Name
				}
				ts := time.Unix(note.Event.CreatedAt, 0).Format("2006-01-02 15:04")
				fmt.Printf("[%s] %s: %s\n", ts, author, note.Event.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of notes")
	cmd.Flags().BoolVar(&follows, "follows", false, "restrict to followed authors")
	return cmd
}

func dmCmd() *cobra.Command {
	var send string

	cmd := &cobra.Command{
		Use:   "dm <pubkey>",
		Short: "Read a conversation, or send with --send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			if send != "" {
				result, err := c.SendDirectMessage(ctx, args[0], send)
				if err != nil {
					return err
				}
				fmt.Printf("sent (accepted by %d relays)\n", result.Accepted)
				return nil
			}

			messages, err := c.Conversation(ctx, args[0])
			if err != nil {
				return err
			}
			for _, msg := range messages {
				direction := "<-"
				if msg.Outgoing {
					direction = "->"
				}
				ts := time.Unix(msg.CreatedAt, 0).Format("2006-01-02 15:04")
				fmt.Printf("[%s] %s %s\n", ts, direction, msg.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&send, "send", "", "message to send")
	return cmd
}
