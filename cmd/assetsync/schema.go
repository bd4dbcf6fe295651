package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the asset catalog structure",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schemas in the workspace",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		schemas, err := a.assets.Schemas(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, schema := range schemas {
			marker := " "
			if schema.Name == a.cfg.SchemaName {
				marker = ui.RenderAccent("●")
			}
			fmt.Printf("%s %-24s %s\n", marker, schema.Name,
				ui.RenderDim(fmt.Sprintf("(id %d, %d objects)", schema.ID, schema.ObjectCount)))
		}
	},
}

var schemaTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List object types in the configured schema",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		schema, err := a.assets.SchemaByName(ctx, a.cfg.SchemaName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		types, err := a.assets.ObjectTypes(ctx, schema.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Object types in %s:\n", ui.RenderAccent(schema.Name))
		for _, t := range types {
			marker := " "
			if t.Name == a.cfg.ObjectTypeName {
				marker = ui.RenderAccent("●")
			}
			fmt.Printf("%s %-24s %s\n", marker, t.Name, ui.RenderDim(fmt.Sprintf("(id %d)", t.ID)))
		}
	},
}

var schemaAttrsCmd = &cobra.Command{
	Use:   "attrs [object-type]",
	Short: "List attributes of an object type",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		typeName := a.cfg.ObjectTypeName
		if len(args) == 1 {
			typeName = args[0]
		}

		schema, err := a.assets.SchemaByName(ctx, a.cfg.SchemaName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		objType, err := a.assets.ObjectTypeByName(ctx, schema.ID, typeName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		attrs, err := a.assets.Attributes(ctx, objType.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Attributes of %s:\n", ui.RenderAccent(typeName))
		for _, attr := range attrs {
			fmt.Printf("  %-28s %s\n", attr.Name, ui.RenderDim(fmt.Sprintf("(id %d)", attr.ID)))
		}
	},
}

func init() {
	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaTypesCmd)
	schemaCmd.AddCommand(schemaAttrsCmd)
	rootCmd.AddCommand(schemaCmd)
}
