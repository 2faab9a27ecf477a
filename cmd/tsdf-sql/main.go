// Command tsdf-sql serves an ad hoc SQL browser over a persisted
// chunk/pose store, for bring-up and incident debugging without
// writing one-off query scripts.
package main

import (
	"flag"
	"log"
	"net/http"

	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"database/sql"

	"github.com/tailscale/tailsql/server/tailsql"
)

var (
	mapPath = flag.String("map-db", "slam_map.db", "path to the sqlite-backed chunk/pose store")
	listen  = flag.String("listen", ":8090", "HTTP listen address")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("tsdf-sql: %v", err)
	}
}

func run() error {
	db, err := sql.Open("sqlite", *mapPath)
	if err != nil {
		return err
	}
	defer db.Close()

	mux := http.NewServeMux()
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://"+*mapPath, db, &tailsql.DBOptions{Label: "SLAM chunk/pose store"})
	debug.Handle("tailsql/", "SQL live debugging over the chunk/pose store", tsql.NewMux())

	log.Printf("tsdf-sql: serving on %s", *listen)
	return http.ListenAndServe(*listen, mux)
}
