package engine

import (
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// Addresses are the program-derived addresses of one user's records.
type Addresses struct {
	Profile        solana.PublicKey `json:"profile"`
	PrimaryVault   solana.PublicKey `json:"sol_vault"`
	SecondaryVault solana.PublicKey `json:"usdc_vault"`
	FeePool        solana.PublicKey `json:"fee_pool"`
	ProfileBump    uint8            `json:"profile_bump"`
}

// DeriveAddresses computes the profile and vault addresses of owner under programID.
func DeriveAddresses(programID, owner solana.PublicKey) (Addresses, error) {
	var a Addresses
	var err error

	if a.Profile, a.ProfileBump, err = derive(domain.ProfileSeed, programID, owner); err != nil {
		return Addresses{}, err
	}
	if a.PrimaryVault, _, err = derive(domain.VaultPrimary.PDASeed(), programID, owner); err != nil {
		return Addresses{}, err
	}
	if a.SecondaryVault, _, err = derive(domain.VaultSecondary.PDASeed(), programID, owner); err != nil {
		return Addresses{}, err
	}
	if a.FeePool, _, err = derive(domain.VaultFeePool.PDASeed(), programID, owner); err != nil {
		return Addresses{}, err
	}
	return a, nil
}

// Vault returns the address of a vault class.
func (a Addresses) Vault(class domain.VaultClass) solana.PublicKey {
	switch class {
	case domain.VaultPrimary:
		return a.PrimaryVault
	case domain.VaultSecondary:
		return a.SecondaryVault
	}
	return a.FeePool
}

func derive(seed string, programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(seed), owner[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive %s address: %w", seed, err)
	}
	return addr, bump, nil
}
