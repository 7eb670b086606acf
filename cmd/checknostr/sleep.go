//go:build !darwin

package main

// sleep notifications are only available on darwin
func sleeper(listen chan bool) {}
