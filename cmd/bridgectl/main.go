// Command bridgectl is the operator CLI of a bridge node.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"NftBridge/client"
	"NftBridge/internal/derive"
)

const (
	NodeEnvVar = "BRIDGE_NODE"
	KeyEnvVar  = "BRIDGE_KEY"
)

var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "bridgectl"
	app.Usage = "NFT bridge node command line interface"
	app.Flags = []cli.Flag{nodeFlag, keyFlag}
	app.Commands = []*cli.Command{
		&statusCommand,
		&keygenCommand,
		&addressCommand,
		&accountCommand,
		&mintNativeCommand,
		&createNFTCommand,
		&escrowCommand,
		&collectionCommand,
		&snapshotCommand,
	}

	return app
}

var (
	nodeFlag = &cli.StringFlag{
		Name:    "node",
		Usage:   "address of the node HTTP API",
		Value:   "127.0.0.1:8080",
		EnvVars: []string{NodeEnvVar},
	}
	keyFlag = &cli.StringFlag{
		Name:    "key",
		Usage:   "path to the Ed25519 key file signing requests",
		EnvVars: []string{KeyEnvVar},
	}
)

func getClient(ctx *cli.Context) (*client.Client, error) {
	c, err := client.NewClient(ctx.String(nodeFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("connect to node: %v", err)
	}
	return c, nil
}

func getWallet(ctx *cli.Context) (*client.Wallet, error) {
	path := ctx.String(keyFlag.Name)
	if path == "" {
		return nil, fmt.Errorf("missing --%s", keyFlag.Name)
	}
	return client.LoadWallet(path)
}

// withSigner resolves the client and wallet for a signing command.
func withSigner(ctx *cli.Context) (*client.Client, *client.Wallet, error) {
	w, err := getWallet(ctx)
	if err != nil {
		return nil, nil, err
	}

	c, err := getClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	return c, w, nil
}

func parseAddressFlag(ctx *cli.Context, name string) (derive.Address, error) {
	v := ctx.String(name)
	if v == "" {
		return derive.Address{}, nil
	}

	a, err := derive.ParseAddress(v)
	if err != nil {
		return derive.Address{}, fmt.Errorf("--%s: %v", name, err)
	}
	return a, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
