package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"devtools-rpc/domains"
)

var domainsCmd = &cobra.Command{
	Use:   "domains [Domain ...]",
	Short: "List the built-in commands and events",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(names) == 0 {
			names = domains.Catalog.Domains()
		}

		for _, name := range names {
			d, ok := domains.Catalog.Domain(name)
			if !ok {
				return fmt.Errorf("unknown domain %q", name)
			}

			fmt.Println(d.Name)
			for _, c := range sortedKeys(d.Commands) {
				fmt.Printf("  command  %s.%s\n", d.Name, c)
			}
			for _, e := range sortedKeys(d.Events) {
				fmt.Printf("  event    %s.%s\n", d.Name, e)
			}
		}
		return nil
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
