package config

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/mit-dci/escapechan/consts"
)

type Config struct { // define a struct for usage with go-flags
	HomeDir    string `long:"dir" description:"Home directory of the node, as an absolute path."`
	ConfigFile string `no-flag:"t"`
	Net        string `long:"net" choice:"reg" choice:"tn3" choice:"main" description:"Bitcoin network."`
	DBFile     string `long:"db" description:"Revocation and channel database file, relative to the home directory."`

	MinCapacity int64 `long:"mincap" description:"Smallest channel to open or accept, in satoshis."`
	MaxFunding  int64 `long:"maxfund" description:"Most to put into a channel someone else opens, in satoshis."`

	// for the demo run
	Capacity int64 `long:"capacity" description:"Channel capacity for the demo channel."`
	Push     int64 `long:"push" description:"Amount the acceptor puts into the demo channel."`
	Pay      int64 `long:"pay" description:"Amount the demo payment moves."`

	Verbose []bool `short:"v" long:"verbose" description:"More logging.  Repeat for even more."`
	LogFile bool   `long:"logfile" description:"Also write the log to a file in the home directory."`

	Params *chaincfg.Params `no-flag:"t"`
}

var (
	DefaultHomeDirName    = filepath.Join(os.Getenv("HOME"), ".escapechan")
	DefaultKeyFileName    = "privkey.hex"
	DefaultConfigFilename = "escapechan.conf"
	DefaultLogFilename    = "escapechan.log"
	DefaultDBFile         = "chan.db"
	DefaultNet            = "reg"
	DefaultCapacity       = int64(1000000)
	DefaultPush           = int64(200000)
	DefaultPay            = int64(50000)
)

// Default is the config before flags and the config file.
func Default() Config {
	return Config{
		HomeDir:     DefaultHomeDirName,
		Net:         DefaultNet,
		DBFile:      DefaultDBFile,
		MinCapacity: consts.MinChanCapacity,
		MaxFunding:  consts.MaxFunding,
		Capacity:    DefaultCapacity,
		Push:        DefaultPush,
		Pay:         DefaultPay,
	}
}

// NewConfigParser returns a new command line flags parser.
func NewConfigParser(conf *Config, options flags.Options) *flags.Parser {
	return flags.NewParser(conf, options)
}

// NetParams maps the net flag to chain params.
func NetParams(net string) *chaincfg.Params {
	switch net {
	case "tn3":
		return &chaincfg.TestNet3Params
	case "main":
		return &chaincfg.MainNetParams
	}
	return &chaincfg.RegressionNetParams
}
