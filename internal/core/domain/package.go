package domain

import "sort"

// PackageDependency pairs a specifier as written in the package's module
// with the resolved package it points at.
type PackageDependency struct {
	Dependency Specifier  `json:"dependency"`
	Package    Identifier `json:"package"`
}

// Package is the payload of a KindPackage object: a checked-in directory
// artifact plus its fully resolved dependency set.
type Package struct {
	Artifact     Identifier          `json:"artifact"`
	Dependencies []PackageDependency `json:"dependencies,omitempty"`
}

// EncodePackage sorts dependencies by key and wraps them, with the root
// artifact, into a package object.
func EncodePackage(artifact Identifier, deps []PackageDependency) (Identifier, []byte, error) {
	sorted := make([]PackageDependency, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Dependency.Key() < sorted[j].Dependency.Key()
	})

	children := make([]Identifier, 0, len(sorted)+1)
	children = append(children, artifact)
	for _, d := range sorted {
		children = append(children, d.Package)
	}

	return EncodeObject(KindPackage, children, Package{Artifact: artifact, Dependencies: sorted})
}

// DecodePackage parses a stored package object.
func DecodePackage(data []byte) (Package, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return Package{}, err
	}
	var pkg Package
	if err := obj.DecodePayload(&pkg); err != nil {
		return Package{}, err
	}
	return pkg, nil
}
