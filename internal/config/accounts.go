package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// accountsFile is the on-disk shape of the accounts file.
//
// Accounts is the canonical form. Agents is the legacy plugin.json layout that
// grouped storage and service bus accounts under one system name; it is
// migrated to canonical records on load.
type accountsFile struct {
	Accounts []models.Account `mapstructure:"accounts"`
	Agents   []LegacyAgent    `mapstructure:"agents"`
}

// LegacyAgent is one entry of the legacy "agents" array.
type LegacyAgent struct {
	SystemName         string          `mapstructure:"systemName"`
	StorageAccounts    []LegacyAccount `mapstructure:"storageAccounts"`
	ServiceBusAccounts []LegacyAccount `mapstructure:"serviceBusAccounts"`
}

// LegacyAccount is an account record without an explicit type.
type LegacyAccount struct {
	AccountName      string `mapstructure:"accountName"`
	ConnectionString string `mapstructure:"connectionString"`
}

// LoadAccounts reads the accounts file at path and returns the validated canonical list.
func LoadAccounts(path string) ([]models.Account, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading accounts file %s: %w", path, err)
	}

	var file accountsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("error decoding accounts file %s: %w", path, err)
	}

	accounts := append(file.Accounts, Migrate(file.Agents)...)
	for i := range accounts {
		accounts[i].Kind = models.Kind(strings.ToLower(string(accounts[i].Kind)))
	}
	if err := Validate(accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Migrate flattens legacy agent entries into canonical account records.
func Migrate(agents []LegacyAgent) []models.Account {
	var accounts []models.Account
	for _, agent := range agents {
		for _, acc := range agent.StorageAccounts {
			accounts = append(accounts, models.Account{
				SystemName:       agent.SystemName,
				Kind:             models.StorageQueue,
				AccountName:      acc.AccountName,
				ConnectionString: acc.ConnectionString,
			})
		}
		for _, acc := range agent.ServiceBusAccounts {
			accounts = append(accounts, models.Account{
				SystemName:       agent.SystemName,
				Kind:             models.PubSubNamespace,
				AccountName:      acc.AccountName,
				ConnectionString: acc.ConnectionString,
			})
		}
	}
	return accounts
}

// Validate checks that every account is complete and unique per (kind, accountName).
//
// Connection strings are not parsed here, a malformed one only fails that
// account's poll.
func Validate(accounts []models.Account) error {
	if len(accounts) == 0 {
		return internalerrors.ErrNoAccounts
	}

	seen := make(map[string]struct{}, len(accounts))
	for i, acc := range accounts {
		if !acc.Kind.Valid() {
			return fmt.Errorf("account %d (%s): %w %q", i, acc.AccountName, internalerrors.ErrUnknownAccountKind, acc.Kind)
		}
		if acc.SystemName == "" {
			return fmt.Errorf("account %d: %w: systemName", i, internalerrors.ErrMissingAttribute)
		}
		if acc.AccountName == "" {
			return fmt.Errorf("account %d: %w: accountName", i, internalerrors.ErrMissingAttribute)
		}
		if acc.ConnectionString == "" {
			return fmt.Errorf("account %d (%s): %w: connectionString", i, acc.AccountName, internalerrors.ErrMissingAttribute)
		}
		key := acc.String()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", internalerrors.ErrDuplicateAccount, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
