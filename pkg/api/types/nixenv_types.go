package types

// NixEnvPackages is the packages.json document as emitted by `nix-env -qa --json --meta`,
// wrapped in a "packages" object the way nixpkgs' release tooling writes it.
type NixEnvPackages struct {
	Packages map[string]NixEnvPkg `json:"packages"`
}

// NixEnvPkg is one package of packages.json. Unused fields are omitted.
type NixEnvPkg struct {
	Name    string  `json:"name"`
	Pname   string  `json:"pname,omitempty"`
	Version string  `json:"version,omitempty"`
	System  string  `json:"system,omitempty"`
	Meta    PkgMeta `json:"meta"`
}

type PkgMeta struct {
	Available            *bool       `json:"available,omitempty"`
	Maintainers          Maintainers `json:"maintainers,omitempty"`
	Outputs              []string    `json:"outputsToInstall,omitempty"`
	KnownVulnerabilities []string    `json:"knownVulnerabilities,omitempty"`
}
