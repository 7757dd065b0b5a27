// Command gengeo writes placeholder GeoJSON feature collections, one square
// per woreda, for every region. The service loads them from GEO_DIR until
// real administrative boundaries replace them.
//
// Usage:
//
//	go run ./cmd/gengeo -out data/geo
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/couchcryptid/drought-cdi-service/internal/geo"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/geo", "directory to write <region>.geojson files into")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	written, err := geo.WritePlaceholders(*out)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
