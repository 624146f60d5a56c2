// Package main implements the command line tool to manage access lists,
// committees and sealed documents.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"go.signet.dev/signet"
)

func main() {
	app := makeApp()

	err := app.Run(os.Args)
	if err != nil {
		signet.Logger.Fatal().Err(err).Msg("command failed")
	}
}

func makeApp() *cli.App {
	dbFlag := &cli.StringFlag{
		Name:  "db",
		Usage: "path of the database file",
		Value: "signet.db",
	}

	walletFlag := &cli.StringFlag{
		Name:     "wallet",
		Usage:    "path of the wallet key file",
		Required: true,
	}

	listFlag := &cli.StringFlag{
		Name:     "list",
		Usage:    "id of the access list",
		Required: true,
	}

	memberFlag := &cli.StringFlag{
		Name:     "member",
		Usage:    "address of the member",
		Required: true,
	}

	configFlag := &cli.StringFlag{
		Name:     "config",
		Usage:    "path of the committee configuration",
		Required: true,
	}

	return &cli.App{
		Name:  "signet",
		Usage: "time-limited cryptographic access to sealed documents",
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "generate a wallet key",
				Flags:  []cli.Flag{walletFlag},
				Action: keygenAction,
			},
			{
				Name:  "setup",
				Usage: "split a fresh committee secret between the servers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "threshold",
						Usage:    "share weight required to decrypt",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "server",
						Usage:    "committee member as <weight>:<addr>",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "output directory",
						Value: ".",
					},
				},
				Action: setupAction,
			},
			{
				Name:  "create",
				Usage: "create a new access list",
				Flags: []cli.Flag{
					dbFlag,
					walletFlag,
					&cli.StringFlag{
						Name:     "name",
						Usage:    "name of the list",
						Required: true,
					},
				},
				Action: createAction,
			},
			{
				Name:   "add",
				Usage:  "add a member to the access list",
				Flags:  []cli.Flag{dbFlag, walletFlag, listFlag, memberFlag},
				Action: addAction,
			},
			{
				Name:   "remove",
				Usage:  "remove a member from the access list",
				Flags:  []cli.Flag{dbFlag, walletFlag, listFlag, memberFlag},
				Action: removeAction,
			},
			{
				Name:   "sign",
				Usage:  "record the wallet's approval of the access list",
				Flags:  []cli.Flag{dbFlag, walletFlag, listFlag},
				Action: signAction,
			},
			{
				Name:   "status",
				Usage:  "show the members of the access list and their approvals",
				Flags:  []cli.Flag{dbFlag, walletFlag, listFlag},
				Action: statusAction,
			},
			{
				Name:  "seal",
				Usage: "seal a document to the committee and publish it on the list",
				Flags: []cli.Flag{
					dbFlag, walletFlag, listFlag, configFlag,
					&cli.StringFlag{
						Name:     "in",
						Usage:    "path of the document",
						Required: true,
					},
				},
				Action: sealAction,
			},
			{
				Name:  "open",
				Usage: "fetch a sealed document and decrypt it with the committee",
				Flags: []cli.Flag{
					dbFlag, walletFlag, listFlag, configFlag,
					&cli.StringFlag{
						Name:     "blob",
						Usage:    "content address of the document",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "path of the decrypted output",
						Value: "-",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "lifetime of a freshly minted session key",
						Value: defaultSessionTTL,
					},
				},
				Action: openAction,
			},
			{
				Name:  "serve",
				Usage: "run a key-holding server",
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:     "shares",
						Usage:    "path of the private share material",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address",
						Value: ":4000",
					},
				},
				Action: serveAction,
			},
		},
	}
}
