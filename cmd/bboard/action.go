package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/slate/contracts/bboard"
	"go.dedis.ch/slate/core/store/kv"
	"go.dedis.ch/slate/core/vm"
	"go.dedis.ch/slate/crypto"
	"go.dedis.ch/slate/ledger"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

var suite = suites.MustFind("Ed25519")

// settings is the optional YAML configuration of the tool. Flags take
// precedence over the file.
type settings struct {
	DB  string `yaml:"db"`
	Key string `yaml:"key"`
}

func loadSettings(c *cli.Context) (settings, error) {
	cfg := settings{
		DB:  c.String("db"),
		Key: c.String("key"),
	}

	path := c.String("config")
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("couldn't read config: %v", err)
	}

	file := settings{}

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return cfg, xerrors.Errorf("couldn't parse config: %v", err)
	}

	if !c.IsSet("db") && file.DB != "" {
		cfg.DB = file.DB
	}

	if !c.IsSet("key") && file.Key != "" {
		cfg.Key = file.Key
	}

	return cfg, nil
}

func keygenAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	sk := suite.Scalar().Pick(random.New())

	data, err := sk.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("couldn't marshal secret key: %v", err)
	}

	err = os.WriteFile(cfg.Key, data, 0600)
	if err != nil {
		return xerrors.Errorf("couldn't write key file: %v", err)
	}

	fmt.Fprintf(c.App.Writer, "secret key written to %s\n", cfg.Key)

	return nil
}

func postAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	return withBoard(cfg, func(contract bboard.Contract, ctx *vm.QueryContext) error {
		err := contract.Post(ctx, c.String("message"))
		if err != nil {
			return xerrors.Errorf("couldn't post: %w", err)
		}

		fmt.Fprintln(c.App.Writer, "message posted")

		return nil
	})
}

func takeDownAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	return withBoard(cfg, func(contract bboard.Contract, ctx *vm.QueryContext) error {
		message, err := contract.TakeDown(ctx)
		if err != nil {
			return xerrors.Errorf("couldn't take down: %w", err)
		}

		fmt.Fprintf(c.App.Writer, "taken down: %s\n", message)

		return nil
	})
}

func showAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	db, err := kv.New(cfg.DB)
	if err != nil {
		return xerrors.Errorf("couldn't open db: %v", err)
	}

	defer db.Close()

	fresh, err := bboard.NewLedgerState()
	if err != nil {
		return xerrors.Errorf("couldn't make fresh state: %v", err)
	}

	charged, err := ledger.NewStore(db).Load(boardAddress(), fresh)
	if err != nil {
		return xerrors.Errorf("couldn't load state: %v", err)
	}

	board, err := bboard.View(charged.Root())
	if err != nil {
		return xerrors.Errorf("couldn't decode board: %v", err)
	}

	status := "vacant"
	if board.State == bboard.Occupied {
		status = "occupied"
	}

	fmt.Fprintf(c.App.Writer, "state:    %s\n", status)
	fmt.Fprintf(c.App.Writer, "message:  %s\n", board.Message.TakeOr("<none>"))
	fmt.Fprintf(c.App.Writer, "sequence: %d\n", board.Sequence)
	fmt.Fprintf(c.App.Writer, "owner:    %x\n", board.Owner)

	return nil
}

// withBoard loads the board state, runs the operation, and persists the
// returned state only when the operation succeeds.
func withBoard(cfg settings, fn func(bboard.Contract, *vm.QueryContext) error) error {
	db, err := kv.New(cfg.DB)
	if err != nil {
		return xerrors.Errorf("couldn't open db: %v", err)
	}

	defer db.Close()

	store := ledger.NewStore(db)
	address := boardAddress()

	fresh, err := bboard.NewLedgerState()
	if err != nil {
		return xerrors.Errorf("couldn't make fresh state: %v", err)
	}

	charged, err := store.Load(address, fresh)
	if err != nil {
		return xerrors.Errorf("couldn't load state: %v", err)
	}

	contract := bboard.NewContract(fileWitness{path: cfg.Key})
	ctx := vm.NewContext(address, charged, nil)

	err = fn(contract, ctx)
	if err != nil {
		return err
	}

	err = store.Save(address, ctx.State())
	if err != nil {
		return xerrors.Errorf("couldn't save state: %v", err)
	}

	return nil
}

func boardAddress() []byte {
	factory := crypto.NewHashFactory(crypto.Sha256)
	return crypto.DomainHash(factory, "bboard:addr:", []byte(bboard.ContractName))
}

// fileWitness supplies the secret key from a file on disk.
//
// - implements bboard.Witness
type fileWitness struct {
	path string
}

// LocalSecretKey implements bboard.Witness. It reads the key file and
// returns its content.
func (w fileWitness) LocalSecretKey(ctx *vm.QueryContext) (interface{}, []byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't read key file: %v", err)
	}

	return ctx.Private(), data, nil
}
