// Command lealoned runs the TCP connection handler against the
// in-memory engine in internal/engine. It is boot glue only: flags in,
// Server.ListenAndServe out.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lealone-go/tcpserver/internal/auth"
	"github.com/lealone-go/tcpserver/internal/engine"
	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/server"
)

func main() {
	cfg := protocol.DefaultConfig()

	listen := flag.String("listen", ":9210", "address to listen on")
	baseDir := flag.String("base-dir", ".", "base directory for the local engine")
	ifExists := flag.Bool("ifexists", false, "require the named database to already exist")
	maxCachedObjects := flag.Int("max-cached-objects", cfg.ServerCachedObjects, "per-connection object cache capacity")
	fetchSize := flag.Int("fetch-size", cfg.ServerResultSetFetchSize, "default result set fetch size")
	maxFrameSize := flag.String("max-frame-size", "16MiB", "maximum accepted packet size (human size string)")
	workers := flag.Int("workers", 0, "shared worker pool size (0 = default)")
	ldapURL := flag.String("ldap-url", "", "optional LDAP URL for SESSION_INIT credential validation")
	ldapBindDNFmt := flag.String("ldap-bind-dn", "uid=%s,ou=people,dc=example,dc=com", "LDAP bind DN format string, %s = user")
	flag.Parse()

	frameSize, err := protocol.ParseSize(*maxFrameSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lealoned:", err)
		os.Exit(1)
	}

	cfg.BaseDir = *baseDir
	cfg.IfExists = *ifExists
	cfg.ServerCachedObjects = *maxCachedObjects
	cfg.ServerResultSetFetchSize = *fetchSize
	cfg.MaxFrameSize = frameSize

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var validator auth.Validator
	if *ldapURL != "" {
		validator = auth.NewLDAPValidator(auth.LDAPConfig{URL: *ldapURL, BindDNFmt: *ldapBindDNFmt})
	}

	srv := server.New(cfg, engine.Factory, *workers, validator, logger)
	if err := srv.ListenAndServe(*listen); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}
