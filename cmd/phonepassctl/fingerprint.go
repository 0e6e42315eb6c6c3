package main

import (
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/phonepass/internal/app"
	"github.com/dropDatabas3/phonepass/internal/phone"
)

// fingerprintCmd muestra los fingerprints de un teléfono en todas las
// versiones configuradas. Útil para ubicar una identidad sin loguear el número.
func fingerprintCmd(c *cli) *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "fingerprint <phone>",
		Short: "Calcula el fingerprint de un teléfono",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if region == "" {
				region = cfg.Identity.DefaultRegion
			}
			num, err := phone.Normalize(args[0], region)
			if err != nil {
				return err
			}
			h, err := app.BuildFingerprints(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range h.Candidates(num.E164) {
				mark := ""
				if r.Version == h.CurrentVersion() {
					mark = " (current)"
				}
				printf(out, "v%d %s%s\n", r.Version, r.Value, mark)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "región por defecto (ISO 3166-1 alpha-2)")
	return cmd
}
