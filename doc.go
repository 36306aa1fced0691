/*
Slpdexd is a peer to peer node speaking the Bitcoin Cash wire protocol. It
connects to other nodes, completes the version handshake with them, and
hands what its peers tell it to an indexer through an event journal.

The default options are sane for most users. This means slpdexd will work 'out of
the box' for most users. However, there are also a wide variety of flags that
can be used to control it.

Usage:

	slpdexd [OPTIONS]

For an up-to-date help message:

	slpdexd --help

The long form of all option flags (except -C) can be specified in a configuration
file that is automatically parsed when slpdexd starts up. By default, the
configuration file is located at ~/.slpdexd/slpdexd.conf on POSIX-style operating
systems and %LOCALAPPDATA%\slpdexd\slpdexd.conf on Windows. The -C (--configfile)
flag can be used to override this location.
*/
package main
