package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"zcommit/pkg/zcommit"
	"zcommit/pkg/zsend"
)

func renderCmd() *cobra.Command {
	var (
		options     string
		payloadPath string
		order       string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the zephyrs a push payload would produce",
		Long: `Print the zephyrs a push payload would produce, without sending them.

--options takes the path after /github, for example class/demo/instance/builds.
--payload names a JSON file, or - for standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.OutOrStdout(), cmd.InOrStdin(), options, payloadPath, order)
		},
	}

	cmd.Flags().StringVar(&options, "options", "", "Key/value path, e.g. class/demo")
	cmd.Flags().StringVar(&payloadPath, "payload", "-", "Push payload file, or - for stdin")
	cmd.Flags().StringVar(&order, "order", "forward", "Commit order: forward or reverse")

	return cmd
}

func runRender(out io.Writer, in io.Reader, options, payloadPath, orderValue string) error {
	order, err := zcommit.ParseOrder(orderValue)
	if err != nil {
		return err
	}
	var segments []string
	if trimmed := strings.Trim(options, "/"); trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}
	opts, err := zcommit.ParseOptions(segments)
	if err != nil {
		return err
	}

	var payload []byte
	if payloadPath == "-" {
		payload, err = io.ReadAll(in)
	} else {
		payload, err = os.ReadFile(payloadPath)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	_, results, err := zcommit.Translator{Order: order}.TranslatePush(opts, payload)
	if err != nil {
		return err
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "# skipped: %v\n", res.Err)
			continue
		}
		args := zsend.Args(res.Notification)
		// The body follows instead of the trailing -m argument.
		fmt.Fprintf(out, "# zsend %s -m\n", strings.Join(quoteArgs(args[:len(args)-2]), " "))
		fmt.Fprint(out, res.Notification.Body)
		if !strings.HasSuffix(res.Notification.Body, "\n") {
			fmt.Fprintln(out)
		}
	}
	return nil
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"") {
			out[i] = fmt.Sprintf("%q", arg)
		} else {
			out[i] = arg
		}
	}
	return out
}
