package config

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/mit-dci/escapechan/logging"
	"github.com/pkg/errors"
)

// createDefaultConfigFile creates a config file -- only call this if the
// config file isn't already there
func createDefaultConfigFile(destinationPath string) error {
	dest, err := os.OpenFile(filepath.Join(destinationPath, DefaultConfigFilename),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	writer := bufio.NewWriter(dest)
	_, err = writer.WriteString("net=" + DefaultNet + "\n")
	if err != nil {
		return err
	}
	return writer.Flush()
}

// Setup reads flags and the config file into conf, makes the home directory
// if needed, sets up logging, and returns the node key.  Flags beat the
// config file, which beats the defaults already in conf.
func Setup(conf *Config, args []string) (*[32]byte, io.Closer, error) {
	// pre-parse to find the home directory
	preconf := *conf
	preParser := NewConfigParser(&preconf, flags.HelpFlag|flags.IgnoreUnknown)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if _, err := os.Stat(preconf.HomeDir); os.IsNotExist(err) {
		err = os.MkdirAll(preconf.HomeDir, 0700)
		if err != nil {
			return nil, nil, err
		}
	}
	conf.ConfigFile = filepath.Join(preconf.HomeDir, DefaultConfigFilename)
	if _, err := os.Stat(conf.ConfigFile); os.IsNotExist(err) {
		logging.Infof("creating a new config file in %s\n", preconf.HomeDir)
		err = createDefaultConfigFile(preconf.HomeDir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "default config file")
		}
	}

	parser := NewConfigParser(conf, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(conf.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, nil, errors.Wrap(err, conf.ConfigFile)
		}
	}
	// command line again so it takes precedence
	_, err = parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}
	conf.Params = NetParams(conf.Net)

	var logfile io.Closer
	if conf.LogFile {
		f, err := os.OpenFile(filepath.Join(conf.HomeDir, DefaultLogFilename),
			os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, err
		}
		logging.SetLogFile(f)
		logfile = f
	}
	level := int(logging.LogLevelInfo) + len(conf.Verbose)
	if level > int(logging.LogLevelDebug) {
		level = int(logging.LogLevelDebug)
	}
	logging.SetLogLevel(level)

	key, err := ReadKeyFile(filepath.Join(conf.HomeDir, DefaultKeyFileName))
	if err != nil {
		if logfile != nil {
			logfile.Close()
		}
		return nil, nil, err
	}
	return key, logfile, nil
}

// ReadKeyFile reads a hex encoded 32 byte key, making a new random one if
// the file isn't there.
func ReadKeyFile(filename string) (*[32]byte, error) {
	key := new([32]byte)
	raw, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		_, err = rand.Read(key[:])
		if err != nil {
			return nil, err
		}
		err = ioutil.WriteFile(filename, []byte(hex.EncodeToString(key[:])+"\n"), 0600)
		if err != nil {
			return nil, err
		}
		logging.Infof("wrote new key to %s\n", filename)
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key file %s has %d bytes, expect 32", filename, len(b))
	}
	copy(key[:], b)
	return key, nil
}
