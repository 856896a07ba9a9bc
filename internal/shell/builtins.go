package shell

// registerDefaults installs the two built-in commands every shell gets:
// help and history. Both close over sh to reach its registry and
// history ring. Failure here means the registry already has commands
// named "help"/"history" registered (e.g. a second Shell sharing the
// same Registry) and is a programming error — see DESIGN.md.
func registerDefaults(sh *Shell) {
	must(sh.registry.Register(NewCommand("help", sh.cmdHelp,
		"help [command]",
		"obtain help about shell commands",
		"")))
	must(sh.registry.Register(NewCommand("history", sh.cmdHistory,
		"history",
		"display history list",
		"")))
}

func must(err error) {
	if err != nil {
		panic("shell: unable to register default command: " + err.Error())
	}
}

func (sh *Shell) cmdHelp(io IO, args []string) {
	if len(args) >= 2 {
		cmd := sh.registry.Lookup(args[1])
		if cmd == nil {
			io.Printf("shell: help: %s: command not found\n", args[1])
			return
		}
		io.Printf("usage: %s\n%s\n", cmd.usage, cmd.shortDesc)
		if cmd.longDesc != "" {
			io.Printf("\n%s\n", cmd.longDesc)
		}
		return
	}

	sh.registry.each(func(c *Command) {
		io.Printf("%13s  %s\n", c.name, c.shortDesc)
	})
}

func (sh *Shell) cmdHistory(io IO, args []string) {
	for i := sh.hist.oldest; i != sh.hist.newest; i++ {
		io.Printf("%6d  %s\n", i-sh.hist.oldest, sh.hist.get(i).String())
	}
}
