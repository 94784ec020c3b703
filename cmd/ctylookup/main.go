// Command ctylookup resolves callsigns against cty.plist and prints the entry
// the MQTT sink would use for the spotter continent.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"rbncw/cty"

	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("ctylookup", pflag.ExitOnError)
	dataPath := flags.String("data", "data/cty/cty.plist", "path to cty.plist data file")
	_ = flags.Parse(os.Args[1:])

	db, err := cty.LoadDatabase(*dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading CTY database: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "loaded CTY database with %d entries\n", db.Len())

	// Callsigns on the command line are resolved directly; otherwise read stdin.
	if calls := flags.Args(); len(calls) > 0 {
		for _, call := range calls {
			fmt.Println(describe(db, call))
		}
		return
	}
	if err := lookupLines(db, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		os.Exit(1)
	}
}

func lookupLines(db *cty.Database, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		call := strings.TrimSpace(scanner.Text())
		if call == "" {
			continue
		}
		fmt.Fprintln(out, describe(db, call))
	}
	return scanner.Err()
}

func describe(db *cty.Database, call string) string {
	info, ok := db.Lookup(call)
	if !ok {
		return call + " -> no matching prefix"
	}
	return fmt.Sprintf("%s -> prefix=%s, country=%s, continent=%s, CQ=%d, ITU=%d",
		call, info.Prefix, info.Country, info.Continent, info.CQZone, info.ITUZone)
}
