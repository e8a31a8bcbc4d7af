package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"quicknotes/internal/clipboard"
	"quicknotes/internal/notify"
	"quicknotes/internal/obsidian"
	"quicknotes/internal/query"
	"quicknotes/internal/server"
	"quicknotes/internal/tui"
	"quicknotes/pkg/types"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func serveCmd() *cobra.Command {
	var (
		port      int
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP server and clipboard monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if port != 0 {
				a.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(a.notes, a.notifier, a.logger, server.Config{
				Port:    a.cfg.Server.Port,
				DataDir: a.cfg.DataDir,
				Metrics: a.registry,
			})
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				if err := srv.Stop(); err != nil {
					a.logger.Warn("Error stopping server", zap.Error(err))
				}
			}()

			capture := func(text string) {
				res, err := a.notes.Capture(ctx, text)
				if n, ok := notify.ForCapture(res, err); ok {
					srv.Notify(n)
				}
			}

			var streamDone <-chan struct{}
			var monitor clipboard.Monitor
			switch {
			case fromStdin:
				stream := clipboard.NewStreamMonitor(os.Stdin, a.logger)
				streamDone = stream.Done()
				monitor = stream
			case a.cfg.Monitor.Enabled:
				monitor = clipboard.NewMonitor(a.cfg.Monitor.Interval, a.logger)
			}
			if monitor != nil {
				monitor.OnChange(capture)
				if err := monitor.Start(); err != nil {
					return fmt.Errorf("failed to start clipboard monitor: %w", err)
				}
				defer monitor.Stop()
			}

			if a.cfg.Vault.Enabled {
				vault, err := obsidian.New(a.notes, obsidian.Config{
					VaultPath:    a.cfg.Vault.Path,
					SyncInterval: a.cfg.Vault.Interval,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := vault.Start(ctx); err != nil {
					return err
				}
				defer vault.Stop()
			}

			clips := a.notes.Refresh(ctx)
			a.logger.Info("QuickNotes running",
				zap.Int("clips", len(clips)),
				zap.String("data", a.cfg.DataDir))

			select {
			case <-ctx.Done():
			case <-streamDone:
			}
			a.logger.Info("Shutting down...")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "capture each line read from stdin instead of the system clipboard")
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pid, err := server.StopRunning(cfg.DataDir)
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No server running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped server (pid %d)\n", pid)
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			clip, err := a.notes.AddClip(cmd.Context(), strings.Join(args, " "), tags)
			if err != nil {
				return err
			}
			a.notifier.Notify(notify.Notification{Message: "Clip saved!", Severity: notify.Success})
			fmt.Fprintln(cmd.OutOrStdout(), clip.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to attach (repeatable)")
	return cmd
}

func captureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Save stdin as a note unless it is blank or already saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := a.notes.Capture(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			if n, ok := notify.ForCapture(res, nil); ok {
				a.notifier.Notify(n)
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var (
		search    string
		favorites bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			clips := query.Filter(a.notes.List(cmd.Context()), search)
			if favorites {
				clips = query.Favorites(clips)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(clips)
			}

			if len(clips) == 0 {
				fmt.Fprintln(out, "No clips found")
				return nil
			}
			for _, clip := range clips {
				printClip(out, clip)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show notes whose content or tags contain this text")
	cmd.Flags().BoolVarP(&favorites, "favorites", "f", false, "only show favorites")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printClip(w io.Writer, clip types.Clip) {
	star := " "
	if clip.IsFavorite {
		star = "★"
	}
	when := clip.Timestamp
	if t, err := time.Parse(types.TimestampLayout, clip.Timestamp); err == nil {
		when = t.Local().Format("2006-01-02 15:04")
	}

	fmt.Fprintf(w, "%s %s  %s  %s", star, clip.ID, when, truncate(strings.Join(strings.Fields(clip.Content), " "), 60))
	if len(clip.Tags) > 0 {
		fmt.Fprintf(w, "  #%s", strings.Join(clip.Tags, " #"))
	}
	fmt.Fprintln(w)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			before := len(a.notes.List(cmd.Context()))
			remaining, err := a.notes.DeleteClip(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(remaining) == before {
				a.notifier.Notify(notify.Notification{Message: "Clip not found", Severity: notify.Warning})
				return nil
			}
			a.notifier.Notify(notify.Notification{Message: "Clip deleted", Severity: notify.Success})
			return nil
		},
	}
}

func favoriteCmd() *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "favorite [id]",
		Short: "Mark a note as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			clip, err := a.notes.SetFavorite(cmd.Context(), args[0], !off)
			if err != nil {
				return err
			}
			if clip.IsFavorite {
				a.notifier.Notify(notify.Notification{Message: "Added to favorites", Severity: notify.Success})
			} else {
				a.notifier.Notify(notify.Notification{Message: "Removed from favorites", Severity: notify.Success})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "remove the favorite mark instead")
	return cmd
}

func tagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag [id] [tags...]",
		Short: "Replace the tags of a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			clip, err := a.notes.SetTags(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			printClip(cmd.OutOrStdout(), clip)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all notes to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.notes.Export(cmd.Context())
			if err != nil {
				return err
			}

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(append(doc.Data, '\n'))
				return err
			}

			path := out
			if path == "" {
				path = doc.Name
			} else if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, doc.Name)
			}
			if err := os.WriteFile(path, doc.Data, 0644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}

			a.notifier.Notify(notify.Notification{
				Message:  fmt.Sprintf("Exported %d clip(s) to %s", doc.Count, path),
				Severity: notify.Success,
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory, - for stdout (default: ./quicknotes-export-<date>.json)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Merge notes from a JSON export ahead of the existing ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.notes.ImportPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.notifier.Notify(notify.ForImport(res, nil))
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete every note without --yes")
			}

			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.notes.Clear(cmd.Context()); err != nil {
				return err
			}
			a.notifier.Notify(notify.Notification{Message: "All clips deleted", Severity: notify.Success})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse and search notes interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			browser, err := tui.New(cmd.Context(), a.notes)
			if err != nil {
				return err
			}

			picked, err := browser.Run()
			if err != nil {
				return err
			}
			if picked != nil {
				fmt.Fprintln(cmd.OutOrStdout(), picked.Content)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# sources: %s\n", strings.Join(cfg.LoadedFrom, ", "))
			return nil
		},
	}
}
