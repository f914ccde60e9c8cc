package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/providers/common"
)

func newResolveCommand() *cobra.Command {
	var (
		omdbKey  string
		username string
		password string
		bgAudio  bool
		magnets  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <movie|series> <id>",
		Short: "Resolve one stream request and print the streams",
		Long: "Runs the same lookup the add-on performs for /stream/{type}/{id} and prints the result.\n" +
			"Series ids take the form tt0903747:2:5. Credentials default to OMDB_API_KEY,\n" +
			"ZAMUNDA_USERNAME and ZAMUNDA_PASSWORD.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := domain.ParseStreamRequest(args[0], args[1])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			user := domain.UserConfig{
				OMDBKey:  firstNonEmpty(omdbKey, cfg.OMDBAPIKey),
				Username: firstNonEmpty(username, cfg.ZamundaUsername),
				Password: firstNonEmpty(password, cfg.ZamundaPassword),
				BGAudio:  bgAudio,
			}
			if err := user.Validate(); err != nil {
				return fmt.Errorf("%w: omdb key, username and password are required", err)
			}

			logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			cfg.CacheDisabled = true
			service, cleanup, err := buildStreamService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			response, err := service.Streams(cmd.Context(), user, request)
			if err != nil {
				if errors.Is(err, domain.ErrTitleNotFound) {
					return fmt.Errorf("%s: %w", request, err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if len(response.Streams) == 0 {
				fmt.Fprintf(out, "No streams for %s\n", request)
				return nil
			}
			headers, rows, aligns := streamTable(response.Streams, magnets)
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().StringVar(&omdbKey, "omdb-key", "", "OMDb API key")
	cmd.Flags().StringVar(&username, "username", "", "Zamunda username")
	cmd.Flags().StringVar(&password, "password", "", "Zamunda password")
	cmd.Flags().BoolVar(&bgAudio, "bg-audio", false, "Only releases with Bulgarian audio")
	cmd.Flags().BoolVar(&magnets, "magnet", false, "Print magnet links instead of infohashes")
	return cmd
}

func streamTable(items []domain.Stream, magnets bool) ([]string, [][]string, []columnAlignment) {
	hashHeader := "Infohash"
	if magnets {
		hashHeader = "Magnet"
	}
	headers := []string{"#", "Release", "Details", "File", hashHeader}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(items))
	for i, item := range items {
		details := item.Name
		if _, rest, ok := strings.Cut(item.Name, "\n"); ok {
			details = rest
		}
		file := "-"
		if item.FileIdx != nil {
			file = strconv.Itoa(*item.FileIdx)
		}
		hash := item.InfoHash
		if magnets {
			hash = common.BuildMagnet(item.InfoHash, item.Description)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), item.Description, details, file, hash})
	}
	return headers, rows, aligns
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
