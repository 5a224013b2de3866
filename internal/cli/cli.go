package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	internal_http "github.com/Dijital-Vizyon/flowforge-nexus/internal/http"
	"github.com/Dijital-Vizyon/flowforge-nexus/internal/log"
	internal_storage "github.com/Dijital-Vizyon/flowforge-nexus/internal/storage"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/engine"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/ledger"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

func SetupCLI(rootCmd *cobra.Command) {
	createCmd := &cobra.Command{
		Use:   "create [definition.json]",
		Short: "Create a workflow definition from a JSON file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			raw, err := os.ReadFile(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to read definition file: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to read definition file: %v\n", err)
				os.Exit(1)
			}
			var def models.WorkflowDefinition
			if err := json.Unmarshal(raw, &def); err != nil {
				log.GetLogger().Errorf("Failed to parse definition: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to parse definition: %v\n", err)
				os.Exit(1)
			}
			id, err := svc.CreateWorkflowDefinition(def)
			if err != nil {
				log.GetLogger().Errorf("Failed to create definition: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to create definition: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Created workflow definition '%s' with ID %s\n", def.Name, id)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow definitions",
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			onlyActive, _ := cmd.Flags().GetBool("active")
			defs, err := svc.ListWorkflowDefinitions(onlyActive)
			if err != nil {
				log.GetLogger().Errorf("Failed to list definitions: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list definitions: %v\n", err)
				os.Exit(1)
			}
			if len(defs) == 0 {
				fmt.Fprintf(os.Stdout, "No workflow definitions found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Workflow definitions:\n")
			for _, d := range defs {
				fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Version: %d, Status: %s, Active: %t, Created: %s\n",
					d.ID, d.Name, d.Version, d.Status, d.Active, d.CreatedAt.Format(time.RFC3339))
			}
		},
	}
	listCmd.Flags().Bool("active", false, "Only list published, active definitions")

	publishCmd := &cobra.Command{
		Use:   "publish [id]",
		Short: "Publish a draft workflow definition",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			if err := svc.PublishWorkflowDefinition(args[0]); err != nil {
				log.GetLogger().Errorf("Failed to publish definition: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to publish definition: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Published workflow definition %s\n", args[0])
		},
	}

	sagasCmd := &cobra.Command{
		Use:   "sagas",
		Short: "List saga definitions",
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService(cmd)
			defs, err := svc.ListSagaDefinitions()
			if err != nil {
				log.GetLogger().Errorf("Failed to list sagas: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list sagas: %v\n", err)
				os.Exit(1)
			}
			if len(defs) == 0 {
				fmt.Fprintf(os.Stdout, "No saga definitions found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Saga definitions:\n")
			for _, d := range defs {
				fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Steps: %d, Strategy: %s\n",
					d.ID, d.Name, len(d.Steps), d.CompensationPolicy.Strategy)
			}
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FlowForge API server",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			store := initStore(cmd)
			defer store.Close()

			logger := log.GetLogger()
			lg := ledger.New()
			registry := engine.NewActionRegistry()
			sink := engine.NewAsyncSink(engine.SinkFunc(func(ev models.LifecycleEvent) error {
				logger.Infof("Lifecycle event %s for %s", ev.Name, ev.ExecutionID)
				return nil
			}), 0, logger)
			defer sink.Close()

			svc := engine.NewService(store, logger)
			coord := engine.NewCoordinator(store, lg, registry, sink, logger)
			sagas := engine.NewSagaController(store, lg, registry, registry, sink, logger)

			if err := internal_http.StartServer(port, internal_http.NewEngines(svc, coord, sagas)); err != nil {
				logger.Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to serve the API on")

	rootCmd.AddCommand(createCmd, listCmd, publishCmd, sagasCmd, serveCmd)
}

func newService(cmd *cobra.Command) *engine.Service {
	return engine.NewService(initStore(cmd), log.GetLogger())
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
