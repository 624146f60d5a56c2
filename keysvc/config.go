package keysvc

import (
	"encoding/base64"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// ServerConfig describes one committee member in the public configuration.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	Weight int    `yaml:"weight"`
}

// Config is the public configuration of a committee: everything a client
// needs to seal documents and to collect decryption shares. It carries no
// secret material.
type Config struct {
	PublicKey string         `yaml:"public_key"`
	Threshold int            `yaml:"threshold"`
	Servers   []ServerConfig `yaml:"servers"`
}

// GetPublicKey returns the collective public key of the configuration.
func (c Config) GetPublicKey() (kyber.Point, error) {
	buf, err := base64.StdEncoding.DecodeString(c.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode public key: %v", err)
	}

	point := suite.Point()

	err = point.UnmarshalBinary(buf)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal public key: %v", err)
	}

	return point, nil
}

// Export returns the YAML form of the configuration.
func (c Config) Export() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal config: %v", err)
	}

	return data, nil
}

// ImportConfig reads a public configuration from its YAML form.
func ImportConfig(data []byte) (Config, error) {
	config := Config{}

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to unmarshal config: %v", err)
	}

	if _, err := config.GetPublicKey(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// NewConfig builds the public configuration of the committee with the server
// addresses.
func NewConfig(committee Committee, addrs []string) (Config, error) {
	if len(addrs) != len(committee.shares) {
		return Config{}, xerrors.Errorf("expected %d addresses, got %d",
			len(committee.shares), len(addrs))
	}

	buf, err := committee.pubKey.MarshalBinary()
	if err != nil {
		return Config{}, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	config := Config{
		PublicKey: base64.StdEncoding.EncodeToString(buf),
		Threshold: committee.threshold,
	}

	for i, addr := range addrs {
		config.Servers = append(config.Servers, ServerConfig{
			Addr:   addr,
			Weight: len(committee.shares[i]),
		})
	}

	return config, nil
}

type priShareYAML struct {
	I int    `yaml:"i"`
	V string `yaml:"v"`
}

type sharesYAML struct {
	Shares []priShareYAML `yaml:"shares"`
}

// ExportShares returns the YAML form of the private share material of the
// i-th server. The output is a secret and must stay with that server only.
func (c Committee) ExportShares(i int) ([]byte, error) {
	m := sharesYAML{}

	for _, priShare := range c.shares[i] {
		buf, err := priShare.V.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal share: %v", err)
		}

		m.Shares = append(m.Shares, priShareYAML{
			I: priShare.I,
			V: base64.StdEncoding.EncodeToString(buf),
		})
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal shares: %v", err)
	}

	return data, nil
}

// ImportShares reads the private share material of a server from its YAML
// form.
func ImportShares(data []byte) ([]*share.PriShare, error) {
	m := sharesYAML{}

	err := yaml.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal shares: %v", err)
	}

	if len(m.Shares) == 0 {
		return nil, xerrors.New("no share material")
	}

	shares := make([]*share.PriShare, len(m.Shares))
	for i, s := range m.Shares {
		buf, err := base64.StdEncoding.DecodeString(s.V)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode share: %v", err)
		}

		scalar := suite.Scalar()

		err = scalar.UnmarshalBinary(buf)
		if err != nil {
			return nil, xerrors.Errorf("failed to unmarshal share: %v", err)
		}

		shares[i] = &share.PriShare{I: s.I, V: scalar}
	}

	return shares, nil
}
