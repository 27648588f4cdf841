// Package params implements the ordered parameter sets attached to sketch
// entities and layers.
//
// A Set keeps named numeric or string values in insertion order. A Pair
// couples the current set with its default baseline: changing the defaults
// resets the current values to the new baseline.
//
// Sets round-trip through a small XML blob which is embedded verbatim in
// sketch scripts:
//
//	<?xml version="1.0" encoding="utf-8"?>
//	<root>
//	 <double name="distance" value="2"/>
//	 <string name="color" value="red"/>
//	</root>
package params
