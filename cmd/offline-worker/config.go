package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                   int      `yaml:"port"`
	Origin                 string   `yaml:"origin"`
	OriginHost             string   `yaml:"originHost"`
	Provider               string   `yaml:"provider"`
	DBFile                 string   `yaml:"dbFile"`
	CacheVersion           string   `yaml:"cacheVersion"`
	CoreAssets             []string `yaml:"coreAssets"`
	ExtraAssets            []string `yaml:"extraAssets"`
	NavigationNetworkFirst bool     `yaml:"navigationNetworkFirst"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
