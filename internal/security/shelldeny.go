package security

// BuiltinShellDenyPatterns is merged with operator-configured deny
// patterns when building a Policy (cmd/conductor). Substring matches, not
// regexes.
var BuiltinShellDenyPatterns = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf *",
	":(){:|:&};:",
	"mkfs.",
	"dd if=/dev/zero",
	"dd if=/dev/random",
	"> /dev/sda",
	"chmod -R 777 /",
	"chown -R",
	"curl | sh",
	"curl | bash",
	"wget | sh",
	"wget | bash",
	"| sh -",
	"| bash -",
	"shutdown",
	"reboot",
	"poweroff",
	"init 0",
	"init 6",
	"> /etc/passwd",
	"> /etc/shadow",
	"/dev/null 2>&1 &",
	"fork bomb",
	"kill -9 -1",
	"killall -9",
	"iptables -F",
	"nc -l",
	"ncat -l",
	"/etc/crontab",
	"crontab -r",
	"history -c",
	"shred -u",
	"systemctl stop",
	"systemctl disable",
}
