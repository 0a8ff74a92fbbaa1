package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"meridian/contexts/channel-sync/property-mapping-service/application/queries"
	"meridian/internal/app/bootstrap"
)

// Operator CLI for property configuration.
//
//	adminctl validate-config [--property ID | --all] [--fix] [--verbose]
//	adminctl cache-config [warm|clear|stats]
func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "validate-config":
		os.Exit(runValidateConfig(os.Args[2:]))
	case "cache-config":
		os.Exit(runCacheConfig(os.Args[2:]))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: adminctl validate-config [--property ID | --all] [--fix] [--verbose]")
	fmt.Fprintln(os.Stderr, "       adminctl cache-config [warm|clear|stats]")
}

func runValidateConfig(args []string) int {
	fs := flag.NewFlagSet("validate-config", flag.ExitOnError)
	property := fs.String("property", "", "validate a single property id")
	all := fs.Bool("all", false, "validate every mapping")
	fix := fs.Bool("fix", false, "apply defaults for fixable findings")
	verbose := fs.Bool("verbose", false, "print clean properties and non-critical findings")
	_ = fs.Parse(args)

	if (*property != "") == *all {
		fmt.Fprintln(os.Stderr, "validate-config: exactly one of --property or --all is required")
		return 2
	}

	pg, modules, err := bootstrap.BuildModules()
	if err != nil {
		log.Printf("adminctl: %v", err)
		return 1
	}
	defer func() { _ = pg.Close() }()

	ctx := context.Background()
	validator := modules.Mapping.Validator

	var reports []queries.Report
	if *all {
		reports, err = validator.ValidateAll(ctx)
	} else {
		var report queries.Report
		report, err = validator.ValidateProperty(ctx, *property)
		reports = []queries.Report{report}
	}
	if err != nil {
		log.Printf("validate-config: %v", err)
		return 1
	}

	if *fix {
		for i, report := range reports {
			if report.Clean() {
				continue
			}
			fixed, err := validator.Fix(ctx, report.PropertyID)
			if err != nil {
				log.Printf("fix %s: %v", report.PropertyID, err)
				return 1
			}
			if len(fixed) > 0 {
				fmt.Printf("%s: fixed %v\n", report.PropertyID, fixed)
				reports[i], err = validator.ValidateProperty(ctx, report.PropertyID)
				if err != nil {
					log.Printf("revalidate %s: %v", report.PropertyID, err)
					return 1
				}
			}
		}
	}

	invalid := 0
	for _, report := range reports {
		if report.Clean() {
			if *verbose {
				fmt.Printf("%s (%s): ok\n", report.PropertyID, report.HotelCode)
			}
			continue
		}
		invalid++
		fmt.Printf("%s (%s): %d issue(s)\n", report.PropertyID, report.HotelCode, len(report.Issues))
		for _, issue := range report.Issues {
			if !issue.Critical && !*verbose {
				continue
			}
			marker := "warn"
			if issue.Critical {
				marker = "CRIT"
			}
			suffix := ""
			if issue.Fixable {
				suffix = " (fixable)"
			}
			fmt.Printf("  [%s] %s: %s%s\n", marker, issue.Code, issue.Message, suffix)
		}
	}

	if invalid > 0 {
		fmt.Printf("%d of %d properties have findings\n", invalid, len(reports))
		return 1
	}
	if *verbose {
		fmt.Printf("all %d properties valid\n", len(reports))
	}
	return 0
}

func runCacheConfig(args []string) int {
	action := "stats"
	if len(args) > 0 {
		action = args[0]
	}

	pg, modules, err := bootstrap.BuildModules()
	if err != nil {
		log.Printf("adminctl: %v", err)
		return 1
	}
	defer func() { _ = pg.Close() }()

	cache := modules.Mapping.Config
	switch action {
	case "warm":
		count, err := cache.Warm(context.Background())
		if err != nil {
			log.Printf("cache-config warm: %v", err)
			return 1
		}
		fmt.Printf("warmed %d properties\n", count)
	case "clear":
		cache.Clear()
		fmt.Println("cache cleared")
	case "stats":
		out, err := json.MarshalIndent(cache.Stats(), "", "  ")
		if err != nil {
			log.Printf("cache-config stats: %v", err)
			return 1
		}
		fmt.Println(string(out))
	default:
		fmt.Fprintf(os.Stderr, "cache-config: unknown action %q\n", action)
		return 2
	}
	return 0
}
