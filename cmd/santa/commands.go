package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmuslimabdulj/secret-santa/internal/client"
	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/identity"
)

func newCreateCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and remember its creator token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.client.CreateRoom(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := e.cache.Set(cmd.Context(), identity.PurposeCreator, res.Room.ID, res.CreatorToken); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "room:  %s\n", res.Room.ID)
			fmt.Fprintf(out, "share: %s\n", res.ShareURL)
			fmt.Fprintln(out, "creator token saved; run `santa match` from this device when everyone has joined")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "room id to claim instead of a generated one (env: SANTA_ID)")
	bindFlags(v, cmd.Flags())
	return cmd
}

func newJoinCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var name, wish string

	cmd := &cobra.Command{
		Use:   "join ROOM",
		Short: "Join a room with your name and wish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := client.ParseRoomRef(args[0])

			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.client.Join(cmd.Context(), roomID, name, wish)
			if err != nil {
				return err
			}
			if err := e.cache.Set(cmd.Context(), identity.PurposeParticipant, roomID, p.ID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "joined %s as %s (#%d)\n", roomID, p.Name, p.Seq)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&name, "name", "n", "", "your display name (env: SANTA_NAME)")
	fs.StringVarP(&wish, "wish", "w", "", "what you would like to receive (env: SANTA_WISH)")
	bindFlags(v, fs)
	return cmd
}

func newMatchCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "match ROOM",
		Short: "Close the room and draw the gift ring (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := client.ParseRoomRef(args[0])

			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			token, err := lookup(cmd.Context(), e.cache, identity.PurposeCreator, roomID, tokenFlag)
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("no creator token stored for room %s; pass --token", roomID)
			}

			room, err := e.client.StartMatching(cmd.Context(), roomID, token)
			if errors.Is(err, domain.ErrConflict) && room.Status == domain.RoomStatusMatched {
				fmt.Fprintf(cmd.OutOrStdout(), "room %s was already matched\n", roomID)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "room %s matched: %d participants in the ring\n", roomID, len(room.Assignment))
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "creator token, when not stored on this device (env: SANTA_TOKEN)")
	bindFlags(v, cmd.Flags())
	return cmd
}

func newWatchCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ROOM",
		Short: "Follow a room live until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := client.ParseRoomRef(args[0])

			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			meID, err := lookup(cmd.Context(), e.cache, identity.PurposeParticipant, roomID, "")
			if err != nil {
				return err
			}

			r := newRenderer(cmd.OutOrStdout())
			return e.client.Watch(cmd.Context(), roomID, meID, r.Render)
		},
	}
}

func newRecipientCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var participantID string

	cmd := &cobra.Command{
		Use:   "recipient ROOM",
		Short: "Show who you give a gift to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := client.ParseRoomRef(args[0])

			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			pid, err := lookup(cmd.Context(), e.cache, identity.PurposeParticipant, roomID, participantID)
			if err != nil {
				return err
			}
			if pid == "" {
				return fmt.Errorf("you have not joined room %s from this device; pass --participant", roomID)
			}

			recipient, err := e.client.Recipient(cmd.Context(), roomID, pid)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "you give to %s\nwish: %s\n", recipient.Name, recipient.Wish)
			return nil
		},
	}

	cmd.Flags().StringVar(&participantID, "participant", "", "participant id, when not stored on this device (env: SANTA_PARTICIPANT)")
	bindFlags(v, cmd.Flags())
	return cmd
}

func newQRCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "qr ROOM",
		Short: "Print the room's share link as a QR code, or save it as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := client.ParseRoomRef(args[0])

			e, err := cfg.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if out != "" {
				png, err := e.client.QR(cmd.Context(), roomID)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, png, 0o644); err != nil {
					return fmt.Errorf("write qr: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", out)
				return nil
			}

			// make sure the room exists before printing a link to it
			if _, err := e.client.Snapshot(cmd.Context(), roomID); err != nil {
				return err
			}

			link := strings.TrimSuffix(cfg.server, "/") + "/api/rooms/" + roomID
			qr, err := qrcode.New(link, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("encode qr: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), qr.ToSmallString(false))
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the server-rendered PNG to this file (env: SANTA_OUT)")
	bindFlags(v, cmd.Flags())
	return cmd
}
