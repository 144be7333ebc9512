package main

func main() {
	_ = rootCmd.Execute()
}
