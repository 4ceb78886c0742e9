package main

import (
	"flag"
	"log"

	"github.com/valyala/fasthttp"

	"github.com/funny-falcon/slabmalloc/alloc"
	"github.com/funny-falcon/slabmalloc/zone"
)

var trace = flag.String("trace", "", "allocation trace, json or zip of json files")
var port = flag.String("port", "8080", "port to listen")
var pageSize = flag.Int("page", zone.DefaultPageSize, "page size")
var reserve = flag.Int("reserve", zone.DefaultReserve, "empty pages kept per class, -1 keeps all")
var largeMax = flag.Int("large", 1<<30, "byte budget for objects no size class fits, 0 is unbounded")
var onlyload = flag.Bool("onlyload", false, "only replay the trace")
var verbose = flag.Bool("v", false, "log every request and failed operation")

// Zone is only touched under Heap's lock.
var Zone *zone.Zone
var Heap alloc.Locked

func main() {
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	flag.Parse()

	cfg := zone.DefaultConfig()
	cfg.PageSize = *pageSize
	cfg.Reserve = *reserve
	cfg.Large = &alloc.Large{Max: *largeMax}
	z, err := zone.New(cfg, newSupplier(*pageSize))
	if err != nil {
		log.Fatal(err)
	}
	Zone = z
	Heap.A = z

	if *trace != "" {
		res, err := Load(*trace)
		if err != nil {
			log.Fatal(err)
		}
		st := Zone.Stats()
		log.Printf("replayed %s: %+v", *trace, res)
		log.Printf("pages %d live %d utilization %.3f", st.Pages, st.Live, st.Utilization())
	}

	if *onlyload {
		return
	}

	log.Printf("listening on :%s", *port)
	err = fasthttp.ListenAndServe(":"+*port, handler)
	if err != nil {
		log.Fatal(err)
	}
}

func logf(format string, args ...interface{}) {
	if *verbose {
		log.Printf(format, args...)
	}
}
