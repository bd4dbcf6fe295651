package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/assets"
	"github.com/hwops/assetsync/internal/ui"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Operate on individual assets",
}

var assetProcessCmd = &cobra.Command{
	Use:   "process <object-key>",
	Short: "Sync one asset by key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		out := a.engine.ProcessByKey(ctx, args[0], syncDryRun)
		switch {
		case out.Updated:
			fmt.Printf("%s %s updated: %s -> %s\n", ui.RenderPass("✓"), out.ObjectKey, out.Email, out.AccountID)
		case out.Skipped:
			fmt.Printf("%s %s skipped: %s\n", ui.RenderWarn("⚠"), out.ObjectKey, out.SkipReason)
		case out.Success:
			fmt.Printf("%s %s would be updated: %s -> %s\n", ui.RenderAccent("●"), out.ObjectKey, out.Email, out.AccountID)
		default:
			fmt.Fprintf(os.Stderr, "%s %s failed: %s\n", ui.RenderFail("✗"), out.ObjectKey, out.Error)
			os.Exit(1)
		}
	},
}

var assetAttrs []string

var assetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new asset",
	Long: `Create an asset of the configured object type.

Attributes are given as --attr "Name=value" pairs. Date attributes accept
any common form, including natural language ("last monday"), and are
normalized to YYYY-MM-DD before the write.

Example:

  assetsync asset create \
      --attr "Serial Number=C02XK1ZGJGH5" \
      --attr "Purchase Date=2024-03-02" \
      --attr "User Email=jane@example.com"`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		attrs := make(map[string]string, len(assetAttrs))
		for _, pair := range assetAttrs {
			name, value, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(name) == "" {
				fmt.Fprintf(os.Stderr, "Error: --attr must be \"Name=value\" (got %q)\n", pair)
				os.Exit(1)
			}
			attrs[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
		if len(attrs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: at least one --attr is required\n")
			os.Exit(1)
		}

		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		obj, err := a.engine.CreateAsset(ctx, attrs, syncDryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if obj == nil {
			fmt.Printf("%s Dry run: asset not created\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), obj.ObjectKey)
	},
}

var assetFindCmd = &cobra.Command{
	Use:   "find <serial-number>",
	Short: "Find an asset by serial number",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		obj, err := a.engine.FindBySerial(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printObject(ctx, a, obj)
	},
}

var assetShowCmd = &cobra.Command{
	Use:   "show <object-key>",
	Short: "Show an asset's attributes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		obj, err := a.assets.GetByKey(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printObject(ctx, a, obj)
	},
}

func printObject(ctx context.Context, a *app, obj *assets.Object) {
	fmt.Printf("%s %s", ui.RenderAccent(obj.ObjectKey), obj.Label)
	fmt.Printf("  %s\n", ui.RenderDim(fmt.Sprintf("(%s, id %d)", obj.ObjectType.Name, obj.ID)))

	// Attribute names come from the discovery cache; unknown ids are shown
	// raw rather than hidden.
	names := attributeNames(ctx, a, obj)
	for _, attr := range obj.Attributes {
		if len(attr.Values) == 0 {
			continue
		}
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			if v.DisplayValue != "" {
				values = append(values, v.DisplayValue)
			} else {
				values = append(values, v.Value)
			}
		}
		name := names[attr.ObjectTypeAttributeID]
		if name == "" {
			name = fmt.Sprintf("attribute %d", attr.ObjectTypeAttributeID)
		}
		fmt.Printf("  %-24s %s\n", name+":", strings.Join(values, ", "))
	}
}

func attributeNames(ctx context.Context, a *app, obj *assets.Object) map[int]string {
	names := make(map[int]string)
	attrs, err := a.assets.Attributes(ctx, obj.ObjectType.ID)
	if err != nil {
		return names
	}
	for _, attr := range attrs {
		names[attr.ID] = attr.Name
	}
	return names
}

func init() {
	assetProcessCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
	assetCreateCmd.Flags().StringArrayVar(&assetAttrs, "attr", nil, "attribute as \"Name=value\" (repeatable)")
	assetCreateCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "validate without creating")

	assetCmd.AddCommand(assetProcessCmd)
	assetCmd.AddCommand(assetCreateCmd)
	assetCmd.AddCommand(assetFindCmd)
	assetCmd.AddCommand(assetShowCmd)
	rootCmd.AddCommand(assetCmd)
}
