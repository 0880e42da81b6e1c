package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Manage the persona library",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas, archetypes, and domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Personas:")
		for _, id := range personaStore.List() {
			p, err := personaStore.Get(id)
			if err != nil {
				continue
			}
			line := "  " + id
			if p.Name != "" {
				line += " (" + p.Name + ")"
			}
			if p.Archetype != "" {
				line += " [" + p.Archetype + "]"
			}
			fmt.Println(line)
		}

		fmt.Println("\nArchetypes:")
		for _, id := range personaStore.Archetypes() {
			fmt.Println("  " + id)
		}

		fmt.Println("\nDomains:")
		for _, d := range personaStore.Domains() {
			members, _ := personaStore.DomainMembers(d)
			fmt.Printf("  %s: %s\n", d, strings.Join(members, ", "))
		}
		return nil
	},
}

var personasShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a persona with archetype inheritance applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := personaStore.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:        %s\n", p.ID)
		if p.Name != "" {
			fmt.Printf("name:      %s\n", p.Name)
		}
		if p.Archetype != "" {
			fmt.Printf("archetype: %s\n", p.Archetype)
		}
		if p.Provider != "" {
			fmt.Printf("provider:  %s\n", p.Provider)
		}
		if p.Model != "" {
			fmt.Printf("model:     %s\n", p.Model)
		}
		if p.Temperature > 0 {
			fmt.Printf("temp:      %.2f\n", p.Temperature)
		}
		if p.ReasoningMode != "" {
			fmt.Printf("reasoning: %s\n", p.ReasoningMode)
		}
		if p.WebSearch {
			fmt.Println("search:    enabled")
		}
		if len(p.Traits) > 0 {
			fmt.Println("traits:")
			for _, t := range p.Traits {
				fmt.Printf("  %s: %.1f\n", t.Name, t.Weight)
			}
		}
		if len(p.FocusAreas) > 0 {
			fmt.Printf("focus:     %s\n", strings.Join(p.FocusAreas, ", "))
		}
		fmt.Printf("\n%s\n", p.Prompt)
		return nil
	},
}

func init() {
	personasCmd.AddCommand(personasListCmd)
	personasCmd.AddCommand(personasShowCmd)
}
