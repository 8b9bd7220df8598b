package main

import (
	"bytes"
	"flag"
	"fmt"
	"net"
	"os"

	"patchlauncher/hexdump"
	"patchlauncher/memstream"
	"patchlauncher/patcher"
	"patchlauncher/process"
)

// context bytes shown before and after each patch site
const margin = 16

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID of a running client")
	exeFlag := flag.String("exe", "", "Executable name of a running client, used when --pid is not given")
	versionFlag := flag.String("version", "Version741", "Client version whose patch sites to read")
	versionsFlag := flag.String("versions", "", "JSON file with additional client versions")
	hostFlag := flag.String("host", "127.0.0.1", "IPv4 address the hostname patch is compared against")
	portFlag := flag.Int("port", 7171, "Port the port patch is compared against")
	flag.Parse()

	pid, err := selectPID(*pidFlag, *exeFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	registry := patcher.DefaultRegistry()
	if *versionsFlag != "" {
		if registry, err = patcher.LoadVersionsFile(*versionsFlag); err != nil {
			fmt.Printf("Error loading versions: %v\n", err)
			os.Exit(1)
		}
	}
	version, ok := registry.ByName(*versionFlag)
	if !ok {
		fmt.Printf("Error: unknown version %s\n", *versionFlag)
		os.Exit(1)
	}

	plan, err := patcher.Plan(version, allPatches(version, net.ParseIP(*hostFlag), *portFlag))
	if err != nil {
		fmt.Printf("Error planning patches: %v\n", err)
		os.Exit(1)
	}

	platform, err := getPlatform()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	stream, err := memstream.Open(platform, pid, memstream.Read)
	if err != nil {
		fmt.Printf("Error attaching to process %d: %v\n", pid, err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Printf("Inspecting %s in process %d\n", version.String(), pid)
	summary := hexdump.NewTable(
		hexdump.Column{Header: "patch"},
		hexdump.Column{Header: "address"},
		hexdump.Column{Header: "size"},
		hexdump.Column{Header: "status", Format: hexdump.StatusFormat},
	)
	for _, p := range plan {
		status, err := inspect(stream, p)
		if err != nil {
			status = err.Error()
		}
		summary.AddRow(p.Name, p.Address.ToString(), fmt.Sprint(len(p.Bytes)), status)
	}

	fmt.Println()
	summary.Render(os.Stdout)
}

func selectPID(pid int, exe string) (process.ProcessID, error) {
	if pid != 0 {
		return process.ProcessID(pid), nil
	}
	if exe == "" {
		return 0, fmt.Errorf("--pid or --exe is required")
	}

	matches, err := process.FindProcessByName(exe)
	if err != nil {
		return 0, err
	}
	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("no process named %s", exe)
	case 1:
		return matches[0].PID, nil
	}
	fmt.Printf("%d processes named %s, using pid %d\n", len(matches), exe, matches[0].PID)
	return matches[0].PID, nil
}

// allPatches selects every patch version has an address for
func allPatches(version patcher.ClientVersion, ip net.IP, port int) patcher.Options {
	t := version.Addresses
	return patcher.Options{
		Address:           ip,
		Port:              port,
		SkipIntro:         t.SkipIntro != 0,
		MultipleInstances: t.MultipleInstances != 0,
		HideWalls:         t.HideWalls != 0,
	}
}

func inspect(stream *memstream.Stream, p patcher.Patch) (string, error) {
	start := p.Address - margin
	buf := make([]byte, margin+len(p.Bytes)+margin)

	if err := stream.SeekAddress(start); err != nil {
		return "", err
	}
	if _, err := stream.Read(buf); err != nil {
		return "", err
	}

	current := buf[margin : margin+len(p.Bytes)]
	status := "original"
	if bytes.Equal(current, p.Bytes) {
		status = "applied"
	}

	fmt.Printf("\n%s at %s: %s\n", p.Name, p.Address.ToString(), status)
	fmt.Print(hexdump.Dump(buf, start, hexdump.Range{Address: p.Address, Size: len(p.Bytes)}))
	return status, nil
}
