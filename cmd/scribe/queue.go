package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/queue"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// withQueue opens the state store around fn
func (a *app) withQueue(fn func(*queue.Service) error) error {
	store, err := a.openState()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(queue.NewService(store, a.logger))
}

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the patient queue",
		Long: `Manage the patient queue and the doctor session.

Entries move pending -> in_progress -> completed. Starting an entry assigns
its encounter id and makes it the session's current patient. Use the
badger state backend to keep the queue between invocations.`,
	}
	cmd.AddCommand(
		newQueueAddCmd(a),
		newQueueListCmd(a),
		newQueueStartCmd(a),
		newQueueCompleteCmd(a),
	)
	return cmd
}

func newQueueAddCmd(a *app) *cobra.Command {
	var patient record.Patient
	var reason string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a patient to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(func(q *queue.Service) error {
				entry, err := q.Add(cmd.Context(), patient, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}
	cmd.Flags().StringVar(&patient.Name, "name", "", "patient full name (required)")
	cmd.Flags().StringVar(&patient.IDType, "id-type", "", "identity document type")
	cmd.Flags().StringVar(&patient.IDNumber, "id-number", "", "identity document number")
	cmd.Flags().StringVar(&patient.BirthDate, "birth-date", "", "birth date")
	cmd.Flags().StringVar(&patient.Age, "age", "", "age")
	cmd.Flags().StringVar(&patient.Sex, "sex", "", "sex")
	cmd.Flags().StringVar(&patient.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&patient.Insurer, "insurer", "", "insurer")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the visit")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newQueueListCmd(a *app) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries in arrival order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := make([]queue.Status, 0, len(statuses))
			for _, s := range statuses {
				st, err := queue.ParseStatus(s)
				if err != nil {
					return err
				}
				filter = append(filter, st)
			}

			return a.withQueue(func(q *queue.Service) error {
				entries, err := q.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, entries)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tPATIENT\tREASON\tENCOUNTER")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Status, e.Patient.Name, e.Reason, e.EncounterID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil,
		"only list these statuses ("+strings.Join([]string{string(queue.StatusPending), string(queue.StatusInProgress), string(queue.StatusCompleted)}, ", ")+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newQueueStartCmd(a *app) *cobra.Command {
	var practitioner string
	cmd := &cobra.Command{
		Use:   "start <entry-id>",
		Short: "Start attending a pending entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(func(q *queue.Service) error {
				if practitioner != "" {
					if _, err := q.OpenSession(cmd.Context(), practitioner, ""); err != nil {
						return err
					}
				}
				entry, err := q.Start(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}
	cmd.Flags().StringVar(&practitioner, "practitioner", "", "open a doctor session for this practitioner first")
	return cmd
}

func newQueueCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <entry-id>",
		Short: "Mark an in-progress entry as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(func(q *queue.Service) error {
				entry, err := q.Complete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, entry)
			})
		},
	}
}
