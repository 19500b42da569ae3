package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// buildMySQLDSN assembles a go-sql-driver DSN from discrete parameters.
// cfg.Options entries override the charset/parseTime/loc defaults.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	options := map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "Local",
	}
	for key, value := range cfg.Options {
		options[key] = value
	}

	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	query := make([]string, 0, len(keys))
	for _, key := range keys {
		query = append(query, key+"="+options[key])
	}

	var sb strings.Builder
	sb.WriteString(cfg.User)
	if cfg.Password != "" {
		sb.WriteByte(':')
		sb.WriteString(cfg.Password)
	}
	fmt.Fprintf(&sb, "@tcp(%s:%d)/%s?%s", host, port, cfg.Name, strings.Join(query, "&"))
	return sb.String(), nil
}
