package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/service/appointments"
	"podoclinic/backend/internal/transport/rest"
)

func newAvailabilityCmd(load loader) *cobra.Command {
	var (
		date    string
		exclude string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print the selectable slots for a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			res, err := b.svc.Availability(ctx, date, domain.AppointmentID(exclude))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rest.NewDisponiblesResponse(res))
			}
			return printAvailability(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&date, "fecha", "", "date to inspect (YYYY-MM-DD)")
	cmd.Flags().StringVar(&exclude, "excluir", "", "appointment id being edited")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("fecha")
	return cmd
}

func printAvailability(w io.Writer, res appointments.AvailabilityResult) error {
	fmt.Fprintf(w, "fecha: %s (fuente: %s)\n", res.Date, res.Source)
	if res.Degraded {
		fmt.Fprintln(w, "aviso: sin datos de citas, se muestran las horas sugeridas por el servidor")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HORA\tESTADO\tEXTENDIBLE")
	for _, s := range res.Slots {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", s.Slot, s.State(), s.Extendable)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, slot := range res.Contested {
		fmt.Fprintf(w, "disputada: %s\n", slot)
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(w, "anomalia: cita %s %s %s\n", a.AppointmentID, a.Kind, a.Detail)
	}
	for _, d := range res.Discrepancies {
		fmt.Fprintf(w, "discrepancia: %s %s\n", d.Slot, d.Kind)
	}
	return nil
}
