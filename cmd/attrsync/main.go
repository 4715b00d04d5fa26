// Attrsync - Extension Attribute Reconciliation Engine
package main

func main() {
	Execute()
}
