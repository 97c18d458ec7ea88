package main

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/term"

	"github.com/rtcsdk/ddns"
)

// providerOption returns the ddns option for the configured DNS provider.
func providerOption() (ddns.Option, error) {
	switch config.Provider {
	case "aliyun", "":
		return ddns.UsingAliyunCLI(config.CLI, config.Region), nil
	case "cloudflare":
		if err := ensureKeyFile(config.KeyFile); err != nil {
			return nil, err
		}
		key, err := readKey(config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("error reading key: %w", err)
		}
		logger.Debug("successfully read key from key file")
		return ddns.UsingCloudflare(key), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}

func ensureKeyFile(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Infof("key file \"%s\" does not exist", path)
		if err := runSetup(path); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	return verifyPermissions(path)
}

func runSetup(path string) error {
	logger.Debug("running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	fmt.Printf("Enter Cloudflare API Key: \n")
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := string(bytekey)

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("verifying token...")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Info("token verified successfully")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	fmt.Fprintln(f, key)
	logger.Infof("token written to \"%s\"", path)
	return nil
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return string(keyb), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
