package main

import (
	"fmt"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func askCMD(cfgPath *string) *cobra.Command {
	var req agrisage.Request
	ask := &cobra.Command{
		Use:   "ask",
		Short: "Answer one question from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if req.SessionID == "" {
				req.SessionID = uuid.NewString()
			}
			resp, err := a.agent.Handle(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
			return nil
		},
	}
	ask.Flags().StringVar(&req.SessionID, "session", "", "session id (random when empty)")
	ask.Flags().StringVar(&req.Text, "text", "", "question text")
	ask.Flags().StringVar(&req.ImageRef, "image", "", "image path under /uploads/ or an http(s) URL")
	ask.Flags().StringVar(&req.Location, "location", "", "city or 'lat,lon'")
	return ask
}
