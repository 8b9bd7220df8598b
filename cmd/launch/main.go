package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"patchlauncher/engine"
	"patchlauncher/hexdump"
	"patchlauncher/patcher"
	"patchlauncher/process"
	"patchlauncher/window"
)

func main() {
	exeFlag := flag.String("exe", "", "Client executable to launch")
	argsFlag := flag.String("args", "", "Command line arguments for the client")
	hostFlag := flag.String("host", "", "Server host name or IPv4 address to connect to")
	portFlag := flag.Int("port", 7171, "Server port, used with --host")
	skipIntroFlag := flag.Bool("skip-intro", false, "Skip the intro sequence")
	multiFlag := flag.Bool("multi", false, "Allow multiple client instances")
	hideWallsFlag := flag.Bool("hide-walls", false, "Do not render walls")
	dllFlag := flag.String("dll", "", "Library to inject before the client runs")
	requireDLLFlag := flag.Bool("require-dll", false, "Fail the launch if the library cannot be loaded")
	versionFlag := flag.String("version", "", "Expected client version name")
	versionsFlag := flag.String("versions", "", "JSON file with additional client versions")
	terminateFlag := flag.Bool("terminate-on-fail", true, "Terminate the client if patching fails, otherwise let it run unpatched")
	titleFlag := flag.String("title", "", "Window title to set once the client window appears")
	titleTimeoutFlag := flag.Duration("title-timeout", 30*time.Second, "How long to wait for the client window")
	verboseFlag := flag.Bool("v", false, "Print the applied patches")
	flag.Parse()

	if *exeFlag == "" {
		fmt.Println("Error: --exe is required")
		flag.Usage()
		os.Exit(1)
	}

	registry, err := loadRegistry(*versionsFlag)
	if err != nil {
		fmt.Printf("Error loading versions: %v\n", err)
		os.Exit(1)
	}
	if len(registry.Versions()) == len(registry.WithoutContentHash()) {
		fmt.Println("Error: no client version has a content hash, a --versions file is required")
		flag.Usage()
		os.Exit(1)
	}

	opts := patcher.Options{
		SkipIntro:         *skipIntroFlag,
		MultipleInstances: *multiFlag,
		HideWalls:         *hideWallsFlag,
	}
	if *hostFlag != "" {
		if opts.Address, err = resolveIPv4(*hostFlag); err != nil {
			fmt.Printf("Error resolving %s: %v\n", *hostFlag, err)
			os.Exit(1)
		}
		opts.Port = *portFlag
	}

	policy := engine.TerminateOnFailure
	if !*terminateFlag {
		policy = engine.ResumeOnFailure
	}

	platform, err := getPlatform()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	e := engine.New(platform, registry)
	res, err := e.Launch(engine.Request{
		ExecutablePath: *exeFlag,
		CommandLine:    *argsFlag,
		Options:        opts,
		LibraryPath:    *dllFlag,
		RequireLibrary: *requireDLLFlag,
		VersionName:    *versionFlag,
		FailurePolicy:  policy,
	})
	if err != nil {
		fmt.Printf("Error launching %s: %v\n", *exeFlag, err)
		var mismatch *process.VersionMismatchError
		if errors.As(err, &mismatch) {
			known := hexdump.NewTable(hexdump.Column{Header: "version"}, hexdump.Column{Header: "sha256"})
			for _, v := range registry.Versions() {
				known.AddRow(v.Name, v.Hash)
			}
			known.Render(os.Stdout)
			for _, v := range registry.WithoutContentHash() {
				fmt.Printf("%s has no content hash built in; pass --versions with an entry named %s and the executable's sha256\n", v.Name, v.Name)
			}
		}
		os.Exit(1)
	}

	fmt.Printf("Launched %s as pid %d\n", res.Version.String(), res.PID)
	if res.InjectionErr != nil {
		fmt.Printf("Warning: %s was not loaded: %v\n", *dllFlag, res.InjectionErr)
	}
	if *verboseFlag {
		patches := hexdump.NewTable(hexdump.Column{Header: "patch"}, hexdump.Column{Header: "address"}, hexdump.Column{Header: "bytes"})
		for _, p := range res.Patches {
			patches.AddRow(p.Name, p.Address.ToString(), fmt.Sprintf("% x", p.Bytes))
		}
		patches.Render(os.Stdout)
	}

	if *titleFlag != "" {
		if err := window.Rename(res.PID, *titleFlag, *titleTimeoutFlag); err != nil {
			fmt.Printf("Warning: could not set window title: %v\n", err)
		}
	}
}

func loadRegistry(path string) (*patcher.Registry, error) {
	if path == "" {
		return patcher.DefaultRegistry(), nil
	}
	return patcher.LoadVersionsFile(path)
}

func resolveIPv4(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address for %s", host)
}
