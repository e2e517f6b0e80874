package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"meerchat/pkg/chat"
	"meerchat/pkg/feed/remote"
)

const requestTimeout = 30 * time.Second

// client returns a remote client carrying the cached session.
func (o *globalOpts) client() (*remote.Client, error) {
	path, err := sessionPath(o.Session)
	if err != nil {
		return nil, err
	}
	s, err := loadSession(path, o.Server, time.Now())
	if err != nil {
		return nil, err
	}
	return remote.New(o.Server, s.AccessToken), nil
}

// checkAuth turns a 401 into a login hint and drops the stale cache.
func (o *globalOpts) checkAuth(err error) error {
	if !errors.Is(err, remote.ErrUnauthorized) {
		return err
	}
	if path, perr := sessionPath(o.Session); perr == nil {
		_ = removeSession(path)
	}
	return errNoSession
}

func newLoginCmd(g *globalOpts) *cobra.Command {
	var opts struct {
		Email    string
		Password string
	}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv("MEERCHAT_PASSWORD")
			}
			if opts.Password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				opts.Password = strings.TrimRight(line, "\r\n")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			c := remote.New(g.Server, "")
			res, err := c.Login(ctx, opts.Email, opts.Password)
			if err != nil {
				return err
			}

			path, err := sessionPath(g.Session)
			if err != nil {
				return err
			}
			err = saveSession(path, cachedSession{
				Server:      g.Server,
				AccessToken: res.Session.AccessToken,
				ExpiresAt:   res.Session.ExpiresAt,
				UserID:      res.User.ID,
			})
			if err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", res.User.Name, res.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password (or MEERCHAT_PASSWORD, or prompt)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sessionPath(g.Session)
			if err != nil {
				return err
			}
			return removeSession(path)
		},
	}
}

func newSendCmd(g *globalOpts) *cobra.Command {
	var opts struct {
		Parent string
	}
	cmd := &cobra.Command{
		Use:   "send <channel> <message...>",
		Short: "Post a message to a channel",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			res, err := c.Post(ctx, chat.PostRequest{
				Channel:         args[0],
				Message:         strings.Join(args[1:], " "),
				ParentMessageID: opts.Parent,
			})
			if err != nil {
				return g.checkAuth(err)
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Response != "":
				fmt.Fprintf(out, "sent %s\n", res.ParentID)
				fmt.Fprintf(out, "meerchat (%s): %s\n", res.MessageID, res.Response)
			case res.Message != "":
				fmt.Fprintf(out, "sent %s\n", res.MessageID)
				fmt.Fprintln(out, res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "ask the assistant to answer an existing message")
	return cmd
}
