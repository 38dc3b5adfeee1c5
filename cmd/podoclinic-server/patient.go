package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"podoclinic/backend/internal/config"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store/postgres"
)

func newPatientCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Maintain the local patient directory",
	}

	var p domain.Patient
	add := &cobra.Command{
		Use:   "add",
		Short: "Insert or update a patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !domain.ValidRUT(p.RUT) {
				return fmt.Errorf("invalid rut %q", p.RUT)
			}
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != config.BackendPostgres {
				return errors.New("the patient directory is read-only on the remote store backend")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := openDatabase(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			saved, err := postgres.NewPatientDirectory(db).SavePatient(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", domain.FormatRUT(saved.RUT), saved.Name)
			return nil
		},
	}
	add.Flags().StringVar(&p.RUT, "rut", "", "patient RUT, with check digit")
	add.Flags().StringVar(&p.Name, "nombre", "", "full name")
	add.Flags().StringVar(&p.Phone, "telefono", "", "phone number")
	add.Flags().StringVar(&p.Email, "correo", "", "email address")
	_ = add.MarkFlagRequired("rut")
	_ = add.MarkFlagRequired("nombre")

	cmd.AddCommand(add)
	return cmd
}
