package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"checknostr/engine/actors"
	"checknostr/engine/library"
	"checknostr/messaging/checker"
)

func main() {
	// Various aspects of this application require global and local settings.
	// To keep things clean and tidy we put these settings in a Viper
	// configuration.
	conf := viper.New()
	actors.InitConfig(conf)
	// make the config accessible globally
	actors.SetConfig(conf)

	c := checker.New(checker.Options{
		Bootstrap:                 conf.GetStringSlice("bootstrapRelays"),
		AutoQuery:                 conf.GetBool("autoQuery"),
		Debounce:                  time.Duration(conf.GetInt("debounceMs")) * time.Millisecond,
		SessionTimeout:            time.Duration(conf.GetInt("sessionTimeoutSeconds")) * time.Second,
		ResolverTimeout:           time.Duration(conf.GetInt("resolverTimeoutSeconds")) * time.Second,
		ResetRelaysOnAuthorChange: conf.GetBool("resetRelaysOnAuthorChange"),
	})

	terminateChan := make(chan struct{})
	actors.SetTerminateChan(terminateChan)

	sleepChan := make(chan bool)
	sleeper(sleepChan)
	go func() {
		for range sleepChan {
			library.LogCLI("system sleep detected, relay sockets are stale, re-running the current round", 2)
			c.Requery()
		}
	}()

	go cliListener(c)
	<-terminateChan
	c.Stop()
	fmt.Println("all relay sessions closed, bye")
}
