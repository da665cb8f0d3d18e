/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package deps provides the deps command for hastegraph: it prints the
// full dependency list a CommonJS entry file resolves to.
package deps

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hastegraph.dev/hastegraph/depgraph"
	"hastegraph.dev/hastegraph/fs"
	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/resolve"
)

// Cmd is the deps cobra command: it builds a DependencyGraph rooted at
// --package and resolves one entry file's full reachable module set.
var Cmd = &cobra.Command{
	Use:   "deps [entry-file]",
	Short: "Resolve a module's full dependency graph",
	Long: `Resolve the full reachable dependency set for a CommonJS entry file,
starting from the project root.`,
	Example: `  # Resolve dependencies for an entry file
  hastegraph deps src/index.js

  # Resolve for a specific platform
  hastegraph deps src/index.js --platform ios`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	Cmd.Flags().String("platform", "", "Target platform for platform-specific file resolution")
	Cmd.Flags().StringSlice("asset-root", nil, "Additional roots scanned for asset files (can be repeated)")
	Cmd.Flags().StringSlice("ext", []string{"js", "json"}, "Source file extensions to index")
	Cmd.Flags().StringSlice("asset-ext", []string{"png", "jpg", "jpeg", "gif", "webp"}, "Asset file extensions to index")
	Cmd.Flags().StringSlice("blacklist", nil, "Glob patterns excluded from crawling and resolution")
	Cmd.Flags().Bool("prefer-native-platform", false, "Try a \".native\" file before the generic file when no platform-specific file matches")
	Cmd.Flags().Bool("workspaces", false, "Auto-populate project roots from the root package.json's workspaces field")

	_ = viper.BindPFlag("platform", Cmd.Flags().Lookup("platform"))
	_ = viper.BindPFlag("asset-root", Cmd.Flags().Lookup("asset-root"))
	_ = viper.BindPFlag("ext", Cmd.Flags().Lookup("ext"))
	_ = viper.BindPFlag("asset-ext", Cmd.Flags().Lookup("asset-ext"))
	_ = viper.BindPFlag("blacklist", Cmd.Flags().Lookup("blacklist"))
	_ = viper.BindPFlag("prefer-native-platform", Cmd.Flags().Lookup("prefer-native-platform"))
	_ = viper.BindPFlag("workspaces", Cmd.Flags().Lookup("workspaces"))
}

// projectRoots returns root, plus every workspace package directory
// discovered under it when --workspaces is set. A root with no
// workspaces field (or no package.json at all) resolves to just root.
func projectRoots(fsys fs.FileSystem, root string) ([]string, error) {
	roots := []string{root}
	if !viper.GetBool("workspaces") {
		return roots, nil
	}

	packages, err := resolve.DiscoverWorkspacePackages(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover workspace packages: %w", err)
	}
	for _, pkg := range packages {
		roots = append(roots, pkg.Path)
	}
	return roots, nil
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()
	absRoot, err := filepath.Abs(viper.GetString("package"))
	if err != nil {
		return fmt.Errorf("invalid package directory: %w", err)
	}

	entryFile, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry file: %w", err)
	}

	platform := viper.GetString("platform")
	var platforms []string
	if platform != "" {
		platforms = []string{platform}
	}

	roots, err := projectRoots(osfs, absRoot)
	if err != nil {
		return err
	}

	g, err := depgraph.New(osfs, depgraph.Options{
		ProjectRoots:         roots,
		AssetRoots:           viper.GetStringSlice("asset-root"),
		ProjectExts:          viper.GetStringSlice("ext"),
		AssetExts:            viper.GetStringSlice("asset-ext"),
		Platforms:            platforms,
		PreferNativePlatform: viper.GetBool("prefer-native-platform"),
		Blacklist:            viper.GetStringSlice("blacklist"),
	})
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	resp, err := g.GetDependencies(depgraph.GetDependenciesRequest{
		EntryFile: entryFile,
		Platform:  platform,
		Recursive: true,
		OnError: func(m module.Module, specifier string, err error) {
			fmt.Printf("warning: %s: %s: %v\n", m.Path(), specifier, err)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	paths := make([]string, 0, len(resp.Dependencies()))
	for _, m := range resp.Dependencies() {
		paths = append(paths, m.Path())
	}

	out, err := json.MarshalIndent(map[string]any{
		"mainModuleId": resp.MainModuleID(),
		"dependencies": paths,
	}, "", "  ")
	if err != nil {
		return err
	}

	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, append(out, '\n'), 0644)
	}
	fmt.Println(string(out))
	return nil
}
