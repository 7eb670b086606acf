package actors

import (
	"os"

	"github.com/spf13/viper"
	"checknostr/engine/library"
)

// InitConfig sets up our Viper config object
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/checknostr/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("logLevel", 4)

	// The bootstrap set doubles as the initial registry and as the indexer
	// relays the profile/outbox resolver asks first.
	config.SetDefault("bootstrapRelays", []string{
		"wss://purplepag.es",
		"wss://relay.nostr.band",
		"wss://relay.damus.io",
	})
	config.SetDefault("autoQuery", true)
	config.SetDefault("debounceMs", 400)

	// 0 means an existence check waits on a silent relay forever.
	config.SetDefault("sessionTimeoutSeconds", 0)
	// The resolver walks relays one at a time, so it always carries a
	// timeout or a single hung relay would stall the whole chain.
	config.SetDefault("resolverTimeoutSeconds", 8)

	// Discarding manually added relays whenever the author key changes looks
	// odd but is how outbox discovery works here: the bootstrap set is the
	// index, the discovered write relays are the answer. Set false to keep
	// manual additions across author changes.
	config.SetDefault("resetRelaysOnAuthorChange", true)

	// Create our working directory and config file if not exist
	initRootDir(config)
	library.Touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	library.SetLogLevel(config.GetInt("logLevel"))
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.Mkdir(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}
