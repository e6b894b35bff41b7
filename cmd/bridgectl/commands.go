package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"NftBridge/client"
	"NftBridge/internal/api"
	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/ledger"
	"NftBridge/internal/snapshot"
)

var (
	chainFlag = &cli.StringFlag{
		Name:     "chain",
		Usage:    "origin chain of the foreign NFT or collection",
		Required: true,
	}
	contractFlag = &cli.StringFlag{
		Name:     "contract",
		Usage:    "origin contract of the foreign NFT or collection",
		Required: true,
	}
	idFlag = &cli.Uint64Flag{
		Name:     "id",
		Usage:    "foreign asset id",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "recipient address",
		Required: true,
	}
	amountFlag = &cli.Uint64Flag{
		Name:     "amount",
		Usage:    "native amount",
		Required: true,
	}
	seedFlag = &cli.StringFlag{
		Name:     "seed",
		Usage:    "seed of the asset address",
		Required: true,
	}
	assetFlag = &cli.StringFlag{
		Name:  "asset",
		Usage: "local asset address",
	}
	receiverFlag = &cli.StringFlag{
		Name:     "receiver",
		Usage:    "owner receiving the unit",
		Required: true,
	}
	bridgeTxFlag = &cli.StringFlag{
		Name:  "bridge-tx",
		Usage: "bridge transaction id; each id can be unlocked once",
	}
	feeFlag = &cli.Uint64Flag{
		Name:  "fee",
		Usage: "lock fee amount",
	}
	feePayerFlag = &cli.StringFlag{
		Name:  "fee-payer",
		Usage: "fee payer: a system account or a holding of the fee asset",
	}
	feePayeeFlag = &cli.StringFlag{
		Name:  "fee-payee",
		Usage: "fee payee account or holding",
	}
	dstChainFlag = &cli.StringFlag{
		Name:  "dst-chain",
		Usage: "destination chain",
	}
	dstAddressFlag = &cli.StringFlag{
		Name:  "dst-address",
		Usage: "destination address on the destination chain",
	}
	nameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "metadata name",
		Required: true,
	}
	symbolFlag = &cli.StringFlag{
		Name:     "symbol",
		Usage:    "metadata symbol",
		Required: true,
	}
	uriFlag = &cli.StringFlag{
		Name:     "uri",
		Usage:    "metadata uri",
		Required: true,
	}
	outFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "output file",
		Required: true,
	}
)

var (
	statusCommand = cli.Command{
		Name:  "status",
		Usage: "Shows node height and registered programs",
		Action: func(ctx *cli.Context) error {
			c, err := getClient(ctx)
			if err != nil {
				return err
			}
			s, err := c.Status()
			if err != nil {
				return err
			}
			return printJSON(s)
		},
	}
	keygenCommand = cli.Command{
		Name:  "keygen",
		Usage: "Generates a new Ed25519 key file",
		Flags: []cli.Flag{outFlag},
		Action: func(ctx *cli.Context) error {
			w := client.NewWallet()
			if err := w.Save(ctx.String(outFlag.Name)); err != nil {
				return err
			}
			return printJSON(map[string]string{"address": w.Address().String()})
		},
	}
	addressCommand = cli.Command{
		Name:  "address",
		Usage: "Shows the address of the signing key",
		Action: func(ctx *cli.Context) error {
			w, err := getWallet(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"address": w.Address().String()})
		},
	}
	accountCommand = cli.Command{
		Name:      "account",
		Usage:     "Shows one ledger account",
		ArgsUsage: "<address>",
		Action: func(ctx *cli.Context) error {
			addr, err := derive.ParseAddress(ctx.Args().First())
			if err != nil {
				return err
			}
			c, err := getClient(ctx)
			if err != nil {
				return err
			}
			acc, err := c.Account(addr)
			if err != nil {
				return err
			}
			return printJSON(acc)
		},
	}
	mintNativeCommand = cli.Command{
		Name:  "mint-native",
		Usage: "Credits native balance (administrator only)",
		Flags: []cli.Flag{toFlag, amountFlag},
		Action: func(ctx *cli.Context) error {
			c, w, err := withSigner(ctx)
			if err != nil {
				return err
			}
			to, err := parseAddressFlag(ctx, toFlag.Name)
			if err != nil {
				return err
			}
			return printReceipt(w.MintNative(c, to, ctx.Uint64(amountFlag.Name)))
		},
	}
	createNFTCommand = cli.Command{
		Name:  "create-nft",
		Usage: "Creates a unit-supply asset and mints it to the signer",
		Flags: []cli.Flag{seedFlag},
		Action: func(ctx *cli.Context) error {
			c, w, err := withSigner(ctx)
			if err != nil {
				return err
			}
			asset, err := w.CreateNFT(c, ctx.String(seedFlag.Name))
			if err != nil {
				return err
			}
			return printJSON(map[string]string{
				"asset":   asset.String(),
				"holding": ledger.AssociatedHolding(w.Address(), asset).String(),
			})
		},
	}
	snapshotCommand = cli.Command{
		Name:  "snapshot",
		Usage: "Downloads and verifies a snapshot of the node store",
		Flags: []cli.Flag{outFlag},
		Action: func(ctx *cli.Context) error {
			c, err := getClient(ctx)
			if err != nil {
				return err
			}
			data, checksum, err := c.Snapshot()
			if err != nil {
				return err
			}
			info, err := snapshot.Inspect(data)
			if err != nil {
				return fmt.Errorf("downloaded snapshot is invalid: %v", err)
			}
			if err := os.WriteFile(ctx.String(outFlag.Name), data, 0600); err != nil {
				return err
			}
			return printJSON(map[string]any{
				"checksum": checksum,
				"entries":  info.Entries,
				"accounts": info.Accounts,
				"bytes":    len(data),
			})
		},
	}
)

var escrowCommand = cli.Command{
	Name:  "escrow",
	Usage: "Bridge escrow operations",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "Initializes the escrow root (administrator only)",
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				return printReceipt(w.InitializeEscrowRoot(c))
			},
		},
		{
			Name:  "lock",
			Usage: "Locks an NFT held by the signer into custody",
			Flags: []cli.Flag{
				chainFlag, contractFlag, idFlag, assetFlag,
				feeFlag, feePayerFlag, feePayeeFlag, dstChainFlag, dstAddressFlag,
			},
			Action: lockAction,
		},
		{
			Name:  "unlock",
			Usage: "Releases a custodied NFT (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag, idFlag, receiverFlag, bridgeTxFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				receiver, err := parseAddressFlag(ctx, receiverFlag.Name)
				if err != nil {
					return err
				}
				return printReceipt(w.Unlock(c, bridge.UnlockArgs{
					OriginChain:    ctx.String(chainFlag.Name),
					OriginContract: ctx.String(contractFlag.Name),
					AssetID:        ctx.Uint64(idFlag.Name),
					BridgeTxID:     ctx.String(bridgeTxFlag.Name),
					Receiver:       receiver,
				}))
			},
		},
		{
			Name:  "record",
			Usage: "Records the local asset of a foreign NFT (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag, idFlag, assetFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				asset, err := parseAddressFlag(ctx, assetFlag.Name)
				if err != nil {
					return err
				}
				return printReceipt(w.RecordAssetInfo(c, bridge.RecordAssetInfoArgs{
					OriginChain:    ctx.String(chainFlag.Name),
					OriginContract: ctx.String(contractFlag.Name),
					AssetID:        ctx.Uint64(idFlag.Name),
					AssetRef:       asset,
				}))
			},
		},
		{
			Name:  "custody",
			Usage: "Shows the custody state of a foreign NFT",
			Flags: []cli.Flag{chainFlag, contractFlag, idFlag},
			Action: func(ctx *cli.Context) error {
				c, err := getClient(ctx)
				if err != nil {
					return err
				}
				cv, err := c.Custody(ctx.String(chainFlag.Name), ctx.String(contractFlag.Name), ctx.Uint64(idFlag.Name))
				if err != nil {
					return err
				}
				return printJSON(cv)
			},
		},
	},
}

func lockAction(ctx *cli.Context) error {
	c, w, err := withSigner(ctx)
	if err != nil {
		return err
	}

	asset, err := parseAddressFlag(ctx, assetFlag.Name)
	if err != nil {
		return err
	}
	if asset.IsZero() {
		return fmt.Errorf("missing --%s", assetFlag.Name)
	}

	payer, err := parseAddressFlag(ctx, feePayerFlag.Name)
	if err != nil {
		return err
	}
	if payer.IsZero() {
		payer = w.Address()
	}

	payee, err := parseAddressFlag(ctx, feePayeeFlag.Name)
	if err != nil {
		return err
	}

	return printReceipt(w.Lock(c, bridge.LockArgs{
		OriginChain:    ctx.String(chainFlag.Name),
		OriginContract: ctx.String(contractFlag.Name),
		AssetID:        ctx.Uint64(idFlag.Name),
		FeeAmount:      ctx.Uint64(feeFlag.Name),
		SrcAddress:     w.Address().String(),
		DstChain:       ctx.String(dstChainFlag.Name),
		DstAddress:     ctx.String(dstAddressFlag.Name),
		SourceHolding:  ledger.AssociatedHolding(w.Address(), asset),
		FeePayer:       payer,
		FeePayee:       payee,
	}))
}

var collectionCommand = cli.Command{
	Name:  "collection",
	Usage: "Mirror collection operations",
	Subcommands: []*cli.Command{
		{
			Name:  "record-origin",
			Usage: "Records the origin of a foreign collection (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				return printReceipt(w.RecordCollectionOrigin(c, ctx.String(chainFlag.Name), ctx.String(contractFlag.Name)))
			},
		},
		{
			Name:  "create",
			Usage: "Mints the mirror collection (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag, nameFlag, symbolFlag, uriFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				return printReceipt(w.CreateMirrorCollection(c, collectionArgs(ctx)))
			},
		},
		{
			Name:  "mint-item",
			Usage: "Mints one mirror item to a receiver (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag, idFlag, receiverFlag, nameFlag, symbolFlag, uriFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				receiver, err := parseAddressFlag(ctx, receiverFlag.Name)
				if err != nil {
					return err
				}
				return printReceipt(w.CreateMirrorItem(c, collection.ItemMintArgs{
					CollectionArgs: collectionArgs(ctx),
					AssetID:        ctx.Uint64(idFlag.Name),
					Receiver:       receiver,
				}))
			},
		},
		{
			Name:  "verify-item",
			Usage: "Verifies a mirror item in its collection (administrator only)",
			Flags: []cli.Flag{chainFlag, contractFlag, idFlag},
			Action: func(ctx *cli.Context) error {
				c, w, err := withSigner(ctx)
				if err != nil {
					return err
				}
				return printReceipt(w.VerifyMirrorItem(c, collection.VerifyArgs{
					OriginChain:    ctx.String(chainFlag.Name),
					OriginContract: ctx.String(contractFlag.Name),
					AssetID:        ctx.Uint64(idFlag.Name),
				}))
			},
		},
		{
			Name:  "show",
			Usage: "Shows the mirror collection of a foreign collection",
			Flags: []cli.Flag{chainFlag, contractFlag},
			Action: func(ctx *cli.Context) error {
				c, err := getClient(ctx)
				if err != nil {
					return err
				}
				mv, err := c.Mirror(ctx.String(chainFlag.Name), ctx.String(contractFlag.Name))
				if err != nil {
					return err
				}
				return printJSON(mv)
			},
		},
	},
}

func collectionArgs(ctx *cli.Context) collection.CollectionArgs {
	return collection.CollectionArgs{
		URI:            ctx.String(uriFlag.Name),
		Name:           ctx.String(nameFlag.Name),
		Symbol:         ctx.String(symbolFlag.Name),
		OriginChain:    ctx.String(chainFlag.Name),
		OriginContract: ctx.String(contractFlag.Name),
	}
}

// printReceipt prints the receipt of a request, failed or not, and returns
// the request error.
func printReceipt(rv *api.ReceiptView, err error) error {
	if rv != nil {
		if perr := printJSON(rv); perr != nil {
			return perr
		}
	}
	return err
}
