// Command conductor runs the chat-transport orchestrator: it loads a JSON5
// config file, opens the embedded store, wires every enabled transport, and
// starts the Conductor and Scheduler loops.
package main

func main() {
	Execute()
}
