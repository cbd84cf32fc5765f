package lpkg

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"lpkg/pkgs"
)

// ScaffoldRequest carries everything needed to generate one package module
// under pkgs/by_name. Command and flag slices are copied into the generated
// source verbatim.
type ScaffoldRequest struct {
	Name            string
	Version         string
	Source          string
	MD5             string
	Stage           string
	Variant         string
	Notes           string
	ConfigureArgs   []string
	BuildCommands   []string
	InstallCommands []string
	Dependencies    []string
	EnableLTO       bool
	EnablePGO       bool
	CFlags          []string
	LDFlags         []string
	Profdata        string
	ModuleOverride  string
	Overwrite       bool
}

// ScaffoldResult reports where the module landed.
type ScaffoldResult struct {
	ModuleName string
	ModuleDir  string
	SourceFile string
	Definition pkgs.PackageDefinition
}

// sanitizeModuleName maps an arbitrary package name to a legal Go package
// identifier: lowercase alphanumerics kept, everything else becomes '_'
// without collapsing, a leading digit gets a 'p' prefix and an empty input
// becomes "pkg".
func sanitizeModuleName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	module := b.String()
	if module == "" {
		return "pkg"
	}
	if module[0] >= '0' && module[0] <= '9' {
		module = "p" + module
	}
	return module
}

// shardPrefix returns the two-character shard directory for a module name,
// padded when the name is a single character.
func shardPrefix(module string) string {
	switch len(module) {
	case 0:
		return "pk"
	case 1:
		return module + "k"
	default:
		return module[:2]
	}
}

// Scaffold generates pkgs/by_name/<shard>/<module>/<module>.go and links it
// into the registry file. baseDir must point at a by_name directory so a
// mistyped path cannot spray generated modules across the tree. An existing
// module aborts with errModuleExists unless the request allows overwrite.
func Scaffold(baseDir string, req ScaffoldRequest) (*ScaffoldResult, error) {
	if filepath.Base(baseDir) != "by_name" {
		return nil, fmt.Errorf("scaffold base %s: last path component must be by_name", baseDir)
	}
	if req.Name == "" || req.Version == "" {
		return nil, fmt.Errorf("scaffold request needs both a name and a version")
	}

	module := req.ModuleOverride
	if module == "" {
		module = req.Name
	}
	module = sanitizeModuleName(module)

	moduleDir := filepath.Join(baseDir, shardPrefix(module), module)
	if _, err := os.Stat(moduleDir); err == nil && !req.Overwrite {
		return nil, fmt.Errorf("module %s at %s: %w", module, moduleDir, errModuleExists)
	}
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating module directory %s: %w", moduleDir, err)
	}

	def := buildDefinition(req)
	sourceFile := filepath.Join(moduleDir, module+".go")
	if err := os.WriteFile(sourceFile, []byte(renderModule(module, def)), 0o644); err != nil {
		return nil, fmt.Errorf("writing module source %s: %w", sourceFile, err)
	}

	if err := ensureRegistryEntry(baseDir, shardPrefix(module), module); err != nil {
		return nil, err
	}

	return &ScaffoldResult{
		ModuleName: module,
		ModuleDir:  moduleDir,
		SourceFile: sourceFile,
		Definition: def,
	}, nil
}

func buildDefinition(req ScaffoldRequest) pkgs.PackageDefinition {
	def := pkgs.NewPackageDefinition(strings.ToLower(req.Name), req.Version)
	def.Source = req.Source
	def.MD5 = req.MD5
	def.Stage = req.Stage
	def.Variant = req.Variant
	def.Notes = req.Notes
	def.ConfigureArgs = append([]string(nil), req.ConfigureArgs...)
	def.BuildCommands = append([]string(nil), req.BuildCommands...)
	def.InstallCommands = append([]string(nil), req.InstallCommands...)
	def.Dependencies = sortedUnique(req.Dependencies)

	// A profile-data path with no explicit flags switches the whole block to
	// the replay preset. Explicit flags always survive, de-duplicated; the
	// profdata path is recorded either way.
	if req.Profdata != "" && len(req.CFlags) == 0 && len(req.LDFlags) == 0 {
		def.Optimizations = pkgs.PGOReplayOptimizations(req.Profdata)
		return def
	}

	opt := pkgs.OptimizationSettings{
		EnableLTO: req.EnableLTO,
		EnablePGO: req.EnablePGO,
		Profdata:  req.Profdata,
	}
	opt.CFlags = sortedUnique(req.CFlags)
	if len(opt.CFlags) == 0 {
		opt.CFlags = defaultCFlags(req)
	}
	opt.LDFlags = sortedUnique(req.LDFlags)
	if len(opt.LDFlags) == 0 {
		opt.LDFlags = defaultLDFlags(req)
	}
	def.Optimizations = opt
	return def
}

func defaultCFlags(req ScaffoldRequest) []string {
	flags := []string{"-O3", "-flto"}
	if req.EnablePGO {
		if req.Profdata != "" {
			flags = append(flags, "-fprofile-use")
		} else {
			flags = append(flags, "-fprofile-generate")
		}
	}
	return flags
}

func defaultLDFlags(req ScaffoldRequest) []string {
	flags := []string{"-flto"}
	if req.EnablePGO {
		if req.Profdata != "" {
			flags = append(flags, "-fprofile-use")
		} else {
			flags = append(flags, "-fprofile-generate")
		}
	}
	return flags
}

func sortedUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// renderModule emits the generated Go source. Output is deterministic for a
// given definition so re-scaffolding an unchanged package is a no-op diff.
func renderModule(module string, def pkgs.PackageDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by lpkg scaffold-package. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", module)
	fmt.Fprintf(&b, "import \"lpkg/pkgs\"\n\n")
	fmt.Fprintf(&b, "func init() {\n\tpkgs.Register(Definition())\n}\n\n")
	fmt.Fprintf(&b, "// Definition describes %s %s.\n", def.Name, def.Version)
	fmt.Fprintf(&b, "func Definition() pkgs.PackageDefinition {\n")
	fmt.Fprintf(&b, "\treturn pkgs.PackageDefinition{\n")
	fmt.Fprintf(&b, "\t\tName:    %q,\n", def.Name)
	fmt.Fprintf(&b, "\t\tVersion: %q,\n", def.Version)
	if def.Source != "" {
		fmt.Fprintf(&b, "\t\tSource:  %q,\n", def.Source)
	}
	if def.MD5 != "" {
		fmt.Fprintf(&b, "\t\tMD5:     %q,\n", def.MD5)
	}
	if def.Stage != "" {
		fmt.Fprintf(&b, "\t\tStage:   %q,\n", def.Stage)
	}
	if def.Variant != "" {
		fmt.Fprintf(&b, "\t\tVariant: %q,\n", def.Variant)
	}
	if def.Notes != "" {
		fmt.Fprintf(&b, "\t\tNotes:   %q,\n", def.Notes)
	}
	writeStringSlice(&b, "ConfigureArgs", def.ConfigureArgs)
	writeStringSlice(&b, "BuildCommands", def.BuildCommands)
	writeStringSlice(&b, "InstallCommands", def.InstallCommands)
	writeStringSlice(&b, "Dependencies", def.Dependencies)
	fmt.Fprintf(&b, "\t\tOptimizations: pkgs.OptimizationSettings{\n")
	fmt.Fprintf(&b, "\t\t\tEnableLTO: %t,\n", def.Optimizations.EnableLTO)
	fmt.Fprintf(&b, "\t\t\tEnablePGO: %t,\n", def.Optimizations.EnablePGO)
	writeNestedStringSlice(&b, "CFlags", def.Optimizations.CFlags)
	writeNestedStringSlice(&b, "LDFlags", def.Optimizations.LDFlags)
	if def.Optimizations.Profdata != "" {
		fmt.Fprintf(&b, "\t\t\tProfdata: %q,\n", def.Optimizations.Profdata)
	}
	fmt.Fprintf(&b, "\t\t},\n")
	fmt.Fprintf(&b, "\t}\n}\n")
	return b.String()
}

func writeStringSlice(b *strings.Builder, field string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "\t\t%s: []string{\n", field)
	for _, v := range values {
		fmt.Fprintf(b, "\t\t\t%q,\n", v)
	}
	fmt.Fprintf(b, "\t\t},\n")
}

func writeNestedStringSlice(b *strings.Builder, field string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "\t\t\t%s: []string{\n", field)
	for _, v := range values {
		fmt.Fprintf(b, "\t\t\t\t%q,\n", v)
	}
	fmt.Fprintf(b, "\t\t\t},\n")
}

var registryImportRe = regexp.MustCompile(`_\s+"([^"]+)"`)

// ensureRegistryEntry rewrites the registry file from the union of its
// current import set and the new module path. The file is regenerated from
// the key set rather than patched line by line, so repeated scaffolds of the
// same module are idempotent and ordering stays sorted.
func ensureRegistryEntry(baseDir, shard, module string) error {
	registryPath := filepath.Join(baseDir, "registry.go")
	importPath := "lpkg/pkgs/by_name/" + shard + "/" + module

	imports := map[string]bool{importPath: true}
	if data, err := os.ReadFile(registryPath); err == nil {
		for _, m := range registryImportRe.FindAllStringSubmatch(string(data), -1) {
			imports[m[1]] = true
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading registry %s: %w", registryPath, err)
	}

	paths := make([]string, 0, len(imports))
	for p := range imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("// Code generated by lpkg scaffold-package. DO NOT EDIT.\n\n")
	b.WriteString("// Package byname links every generated package module into the binary.\n")
	b.WriteString("package byname\n\nimport (\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "\t_ %q\n", p)
	}
	b.WriteString(")\n")

	if err := os.WriteFile(registryPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing registry %s: %w", registryPath, err)
	}
	return nil
}

// RequestFromMetadata flattens a harvested record into a scaffold request.
// Build phases are split on "make install": commands mentioning it land in
// the install list, everything else in the build list. Build and runtime
// dependencies merge into one sorted set.
func RequestFromMetadata(meta *PackageMetadata) ScaffoldRequest {
	req := ScaffoldRequest{
		Name:      meta.Package.Name,
		Version:   meta.Package.Version,
		Stage:     meta.Package.Stage,
		Variant:   meta.Package.Variant,
		EnableLTO: meta.Optimizations.EnableLTO,
		EnablePGO: meta.Optimizations.EnablePGO,
		CFlags:    append([]string(nil), meta.Optimizations.CFlags...),
		LDFlags:   append([]string(nil), meta.Optimizations.LDFlags...),
		Profdata:  meta.Optimizations.Profdata,
	}

	for _, src := range meta.Source.URLs {
		if src.Kind == "primary" {
			req.Source = src.URL
			break
		}
	}
	for _, sum := range meta.Source.Checksums {
		if sum.Alg == "md5" {
			req.MD5 = sum.Value
			break
		}
	}

	for _, phase := range meta.Build {
		for _, cmd := range phase.Commands {
			for _, line := range strings.Split(cmd, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if strings.Contains(line, "make install") {
					req.InstallCommands = append(req.InstallCommands, line)
				} else {
					req.BuildCommands = append(req.BuildCommands, line)
				}
			}
		}
	}

	deps := append([]string(nil), meta.Dependencies.Build...)
	deps = append(deps, meta.Dependencies.Runtime...)
	req.Dependencies = sortedUnique(deps)

	// mlfs/xml-parser -> xml-parser keeps the module name aligned with the
	// record identity even when the display name differs.
	if idx := strings.LastIndex(meta.Package.ID, "/"); idx >= 0 {
		req.ModuleOverride = meta.Package.ID[idx+1:]
	}
	return req
}
